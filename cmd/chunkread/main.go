// Command chunkread parses a delimited text file in parallel, prints a
// summary of the columns it found, and optionally exports the table as CBOR
// or loads it into Postgres.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"chunkread/internal/config"
	"chunkread/internal/metrics"
	"chunkread/internal/metrics/datadog"
	"chunkread/internal/metrics/prompush"
)

func main() {
	var (
		cfgPath        string
		filePath       string
		outPath        string
		workers        int
		chunks         int
		load           bool
		validate       bool
		metricsBackend string
		pushGatewayURL string
		statsdAddr     string
		verbose        bool
		probeFormat    string
		probeTable     string
	)

	flag.StringVar(&cfgPath, "config", "", "job file (.json, .yaml or .yml)")
	flag.StringVar(&filePath, "file", "", "input file; overrides source.file.path")
	flag.StringVar(&outPath, "out", "", "write the parsed table as CBOR to this path; overrides export.path")
	flag.IntVar(&workers, "workers", 0, "concurrent chunk parses (0 = GOMAXPROCS); overrides runtime.workers")
	flag.IntVar(&chunks, "chunks", 0, "requested chunk count (0 = one per worker); overrides runtime.chunks")
	flag.BoolVar(&load, "load", false, "load the parsed table into the configured storage")
	flag.BoolVar(&validate, "validate", false, "validate the job file and exit")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (default from METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_URL)")
	flag.StringVar(&probeFormat, "probe", "", "print a proposed job for the input as json or yaml and exit")
	flag.Lookup("probe").NoOptDefVal = "json"
	flag.StringVar(&probeTable, "probe-table", "", "with --probe, add a Postgres sink for this table")
	flag.BoolVarP(&verbose, "verbose", "v", false, "log every round, widening and recovered issue")
	flag.Parse()

	runID := uuid.New()
	log.SetPrefix(fmt.Sprintf("[%s] ", runID.String()[:8]))
	log.SetOutput(os.Stderr)

	job, err := loadJob(cfgPath, filePath)
	if err != nil {
		fatalf("%v", err)
	}
	if workers > 0 {
		job.Runtime.Workers = workers
	}
	if chunks > 0 {
		job.Runtime.Chunks = chunks
	}
	if outPath != "" {
		job.Export.Path = outPath
	}

	if probeFormat != "" {
		out, err := probeJob(context.Background(), job, probeFormat, probeTable)
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(out)
		return
	}

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("job is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("job is valid: %v", cfgPath)
		os.Exit(0)
	}

	setupMetrics(job.Job, metricsBackend, pushGatewayURL, statsdAddr, verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sum, err := run(ctx, job, runOptions{Load: load, Verbose: verbose})
	if ferr := metrics.Flush(); ferr != nil {
		log.Printf("metrics: flush error: %v", ferr)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	sum.Print(os.Stdout)
	if verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// loadJob reads the job file, or builds a default job around filePath when
// no file is given.
func loadJob(cfgPath, filePath string) (config.Job, error) {
	var job config.Job
	if cfgPath != "" {
		j, err := config.Load(cfgPath)
		if err != nil {
			return job, err
		}
		job = *j
	} else {
		job = config.Job{
			Job:    "chunkread",
			Source: config.Source{Kind: "file"},
			Parser: config.Parser{Kind: "csv", Options: config.Options{}},
		}
	}
	if filePath != "" {
		job.Source.Kind = "file"
		job.Source.File.Path = filePath
	}
	if job.Source.Kind == "file" && job.Source.File.Path == "" {
		return job, fmt.Errorf("no input: pass --config or --file")
	}
	return job, nil
}

// setupMetrics installs the chosen backend: flag, then env, then none.
func setupMetrics(job, backend, gwURL, statsdAddr string, verbose bool) {
	if backend == "" {
		backend = os.Getenv("METRICS_BACKEND")
	}
	if job == "" {
		job = "chunkread"
	}
	switch backend {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backend, job)
		metrics.SetBackend(b)

	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DD_DOGSTATSD_URL")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       statsdAddr,
			Namespace:  "chunkread.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", statsdAddr, backend, job)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backend)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backend)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
