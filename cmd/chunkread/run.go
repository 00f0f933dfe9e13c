package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"chunkread/internal/chunk"
	"chunkread/internal/column"
	"chunkread/internal/config"
	"chunkread/internal/datasource/file"
	"chunkread/internal/datasource/httpds"
	"chunkread/internal/export"
	"chunkread/internal/field"
	"chunkread/internal/metrics"
	"chunkread/internal/probe"
	"chunkread/internal/reader"
	"chunkread/internal/sniff"
	"chunkread/internal/storage"
	"chunkread/internal/storage/postgres"
	pgddl "chunkread/internal/storage/postgres/ddl"
)

const (
	defaultBatchSize = 5000
	maxLoggedIssues  = 20
)

type runOptions struct {
	Load    bool
	Verbose bool
}

// summary is what a run prints when it finishes.
type summary struct {
	Path      string
	HasHeader bool
	Names     []string
	Types     []field.Type
	Stats     reader.Stats
	Issues    int
	Exported  string
	Loaded    int64
	Elapsed   time.Duration
}

// Print writes the summary as aligned text.
func (s *summary) Print(w io.Writer) {
	fmt.Fprintf(w, "file:      %s\n", s.Path)
	fmt.Fprintf(w, "rows:      %d (skipped %d)\n", s.Stats.Rows, s.Stats.SkippedRows)
	fmt.Fprintf(w, "columns:   %d (header %v)\n", len(s.Names), s.HasHeader)
	for j, n := range s.Names {
		fmt.Fprintf(w, "  %-24s %s\n", n, s.Types[j])
	}
	fmt.Fprintf(w, "chunks:    %d in %d rounds, %d attempts\n", s.Stats.Chunks, s.Stats.Rounds, s.Stats.Attempts)
	fmt.Fprintf(w, "widenings: %d, serial rescans: %d, issues: %d\n", s.Stats.Widenings, s.Stats.SerialRescans, s.Issues)
	if s.Exported != "" {
		fmt.Fprintf(w, "exported:  %s\n", s.Exported)
	}
	if s.Loaded > 0 {
		fmt.Fprintf(w, "loaded:    %d rows\n", s.Loaded)
	}
	fmt.Fprintf(w, "elapsed:   %s\n", s.Elapsed.Truncate(time.Millisecond))
}

// run maps the input, sniffs its layout, parses it, and hands the table to
// the configured sinks.
func run(ctx context.Context, job config.Job, ro runOptions) (*summary, error) {
	start := time.Now()
	name := job.Job
	if name == "" {
		name = "chunkread"
	}

	d, err := job.Parser.Dialect()
	if err != nil {
		return nil, err
	}

	input, cleanup, err := fetchInput(ctx, name, job.Source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var m *file.Mapping
	err = step(name, "map", func() error {
		var err error
		m, err = file.NewLocal(input).Map(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer m.Close()

	var sn *sniff.Result
	err = step(name, "sniff", func() error {
		var err error
		sn, err = sniff.Sniff(m.Data, m.DataStart, &d, sniffOptions(job.Parser))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sniff %s: %w", input, err)
	}

	types, names, err := columnsFor(job.Parser, sn)
	if err != nil {
		return nil, err
	}
	if ro.Verbose {
		log.Printf("sniff: ncols=%d header=%v data_start=%d sampled=%d types=%v",
			sn.NCols, sn.HasHeader, sn.DataStart, sn.Sampled, types)
	}

	var res *reader.Result
	err = step(name, "read", func() error {
		var err error
		res, err = reader.Read(ctx, m.Data, chunk.Span{Start: sn.DataStart, End: len(m.Data)}, types, &d, readerOptions(job, names, ro.Verbose))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	logIssues(res.Issues, ro.Verbose)

	if job.Parser.Options.Bool("nfc", false) {
		if err := decodeStrings(res.Table); err != nil {
			return nil, err
		}
	}

	sum := &summary{
		Path:      sourceName(job.Source),
		HasHeader: sn.HasHeader,
		Names:     names,
		Types:     res.Types,
		Stats:     res.Stats,
		Issues:    len(res.Issues),
	}

	if p := job.Export.Path; p != "" {
		if err := step(name, "export", func() error { return writeExport(p, res.Table) }); err != nil {
			return nil, err
		}
		sum.Exported = p
	}

	if ro.Load {
		err = step(name, "load", func() error {
			n, err := loadTable(ctx, job, res.Table)
			sum.Loaded = n
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	sum.Elapsed = time.Since(start)
	return sum, nil
}

// fetchInput returns a local path for the source. An http source is
// downloaded into a temporary directory that cleanup removes.
func fetchInput(ctx context.Context, job string, src config.Source) (string, func(), error) {
	if src.Kind != "http" {
		return src.File.Path, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "chunkread-")
	if err != nil {
		return "", nil, fmt.Errorf("download: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	c := httpds.NewClient(httpds.Config{
		Timeout:            time.Duration(src.HTTP.TimeoutSeconds) * time.Second,
		MaxRetries:         src.HTTP.MaxRetries,
		InsecureSkipVerify: src.HTTP.InsecureSkipVerify,
	})
	var p string
	err = step(job, "download", func() error {
		var err error
		p, err = c.Download(ctx, src.HTTP.URL, dir)
		return err
	})
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return p, cleanup, nil
}

func sourceName(src config.Source) string {
	if src.Kind == "http" {
		return src.HTTP.URL
	}
	return src.File.Path
}

// probeJob detects the separator unless the job sets one, sniffs the input,
// and renders the proposed job.
func probeJob(ctx context.Context, job config.Job, format, table string) ([]byte, error) {
	d, err := job.Parser.Dialect()
	if err != nil {
		return nil, err
	}
	input, cleanup, err := fetchInput(ctx, job.Job, job.Source)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	m, err := file.NewLocal(input).Map(ctx)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	if !job.Parser.Options.Has("sep") {
		d.Sep = probe.DetectSep(m.Data, m.DataStart, d)
	}
	sn, err := sniff.Sniff(m.Data, m.DataStart, &d, sniffOptions(job.Parser))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", input, err)
	}
	proposed := probe.Job(sourceName(job.Source), d, sn, probe.Options{Table: table})
	if job.Source.Kind == "http" {
		proposed.Source = job.Source
	}
	return probe.Render(proposed, format)
}

func step(job, name string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(t0))
	return err
}

func sniffOptions(p config.Parser) sniff.Options {
	present, auto := p.Header()
	return sniff.Options{
		Header:         present,
		AutoHeader:     auto,
		RowsPerJump:    p.Options.Int("sample_rows", 0),
		Fill:           p.Options.Bool("fill", false),
		SkipEmptyLines: p.Options.Bool("skip_empty_lines", false),
	}
}

// columnsFor applies configured types and names over the sniffed ones.
func columnsFor(p config.Parser, sn *sniff.Result) ([]field.Type, []string, error) {
	types := sn.Types
	cfgTypes, err := p.Types()
	if err != nil {
		return nil, nil, err
	}
	if cfgTypes != nil {
		if len(cfgTypes) != sn.NCols {
			return nil, nil, fmt.Errorf("parser.options.types: %d types for %d columns", len(cfgTypes), sn.NCols)
		}
		types = cfgTypes
	}
	names := sn.Names
	if cfgNames := p.Options.StringSlice("names"); cfgNames != nil {
		if len(cfgNames) != sn.NCols {
			return nil, nil, fmt.Errorf("parser.options.names: %d names for %d columns", len(cfgNames), sn.NCols)
		}
		names = sniff.Names(cfgNames, true)
	}
	return types, names, nil
}

func readerOptions(job config.Job, names []string, verbose bool) reader.Options {
	rt := job.Runtime
	return reader.Options{
		Workers:        rt.Workers,
		Chunks:         rt.Chunks,
		Fill:           job.Parser.Options.Bool("fill", false),
		SkipEmptyLines: job.Parser.Options.Bool("skip_empty_lines", false),
		SkipUTF8Check:  !rt.UTF8Check(),
		VerifyBuffer:   rt.VerifyBuffer,
		Boundary: chunk.Options{
			LookaheadLines: rt.LookaheadLines,
			ConsistentRows: rt.ConsistentRows,
			MinChunkSize:   rt.MinChunkSize,
		},
		Names: names,
		Job:   job.Job,
		Debug: verbose,
	}
}

func logIssues(issues []*reader.ParseError, verbose bool) {
	if len(issues) == 0 {
		return
	}
	if !verbose {
		log.Printf("read: %d recovered issues (use -v to list them)", len(issues))
		return
	}
	for i, iss := range issues {
		if i == maxLoggedIssues {
			log.Printf("read: ... and %d more issues", len(issues)-i)
			return
		}
		log.Printf("read: %v", iss)
	}
}

// decodeStrings caches NFC-normalized text for every string column.
func decodeStrings(t *column.Table) error {
	for _, c := range t.Columns {
		if c.Type != field.String {
			continue
		}
		if err := c.Decode(true); err != nil {
			return fmt.Errorf("decode column %s: %w", c.Name, err)
		}
	}
	return nil
}

func writeExport(path string, t *column.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := export.WriteCBOR(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadTable(ctx context.Context, job config.Job, t *column.Table) (int64, error) {
	switch strings.ToLower(job.Storage.Kind) {
	case "", "none":
		return 0, fmt.Errorf("load: no storage configured")
	case "postgres":
	default:
		return 0, fmt.Errorf("load: unsupported storage kind %q", job.Storage.Kind)
	}
	repo, closeFn, err := postgres.NewRepository(ctx, postgres.Config{DSN: job.Storage.DB.DSN, Table: job.Storage.DB.Table})
	if err != nil {
		return 0, err
	}
	defer closeFn()
	return loadInto(ctx, repo, job, t)
}

func loadInto(ctx context.Context, repo storage.Repository, job config.Job, t *column.Table) (int64, error) {
	if job.Storage.DB.AutoCreateTable {
		if err := pgddl.EnsureTable(ctx, repo, job.Storage.DB.Table, t); err != nil {
			return 0, err
		}
	}
	batch := job.Runtime.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return storage.Load(ctx, repo, t, batch, job.Job)
}
