// Package probe proposes a job file for an input nobody has described yet.
// It detects the separator, sniffs the header and column types, and renders
// the result as a config.Job in JSON or YAML.
package probe

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"chunkread/internal/config"
	"chunkread/internal/dialect"
	"chunkread/internal/parser/csv"
	"chunkread/internal/sniff"
)

// Candidates are the separators DetectSep tries, in order of preference on
// a tie.
var Candidates = []byte{',', ';', '\t', '|', ':'}

// sampleLines is the number of records DetectSep reads per candidate.
const sampleLines = 100

// DetectSep returns the candidate separator that splits the first records
// of buf[start:] into the most lines with the same field count, preferring
// more fields on a tie. It returns d.Sep when no candidate yields more than
// one field.
func DetectSep(buf []byte, start int, d dialect.Dialect) byte {
	best, bestLines, bestFields := d.Sep, 0, 1
	for _, sep := range Candidates {
		if sep == d.Dec || sep == d.Quote {
			continue
		}
		dd := d
		dd.Sep = sep
		lines, fields := consistency(buf, start, &dd)
		if fields <= 1 {
			continue
		}
		if lines > bestLines || (lines == bestLines && fields > bestFields) {
			best, bestLines, bestFields = sep, lines, fields
		}
	}
	return best
}

// consistency returns how many sampled lines share the most common field
// count, and that count. A line the quote rule rejects ends the sample.
func consistency(buf []byte, start int, d *dialect.Dialect) (lines, fields int) {
	c := csv.NewContext(buf, start, len(buf), d)
	counts := make(map[int]int)
	for n := 0; n < sampleLines && c.Ch < c.EOF; {
		nf := c.CountFields()
		if nf < 0 {
			break
		}
		if nf == 0 {
			continue
		}
		counts[nf]++
		n++
	}
	for nf, k := range counts {
		if k > lines || (k == lines && nf > fields) {
			lines, fields = k, nf
		}
	}
	return lines, fields
}

// Options configures Job.
type Options struct {
	// Name labels the job; default is the input file name without
	// extensions.
	Name string
	// Table, when set, adds a Postgres storage section for it.
	Table string
	DSN   string
}

// Job builds a job for path from the detected dialect and sniff result.
// Names and types are written out so the job can be edited and re-run.
func Job(path string, d dialect.Dialect, sn *sniff.Result, opts Options) config.Job {
	name := opts.Name
	if name == "" {
		base := filepath.Base(path)
		if i := strings.IndexByte(base, '.'); i > 0 {
			base = base[:i]
		}
		name = sniff.NormalizeName(base)
	}

	types := make([]string, len(sn.Types))
	for j, t := range sn.Types {
		types[j] = t.String()
	}
	po := config.Options{
		"sep":    sepString(d.Sep),
		"header": sn.HasHeader,
		"names":  sn.Names,
		"types":  types,
	}
	if d.Dec != '.' {
		po["dec"] = string(d.Dec)
	}

	job := config.Job{
		Job:    name,
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: path}},
		Parser: config.Parser{Kind: "csv", Options: po},
	}
	if opts.Table != "" {
		job.Storage = config.Storage{
			Kind: "postgres",
			DB:   config.DBConfig{DSN: opts.DSN, Table: opts.Table, AutoCreateTable: true},
		}
	}
	return job
}

func sepString(b byte) string {
	if b == '\t' {
		return "tab"
	}
	return string(b)
}

// Render encodes job as "json" (indented) or "yaml".
func Render(job config.Job, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		out, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("probe: %w", err)
		}
		return append(out, '\n'), nil
	case "yaml", "yml":
		out, err := yaml.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("probe: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("probe: unknown format %q (want json or yaml)", format)
}
