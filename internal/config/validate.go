package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Job.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "parser.options.sep"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation of a Job. It does not mutate the
// job. Callers decide whether warnings are fatal.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be labeled \"chunkread\"",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateParser(j.Parser)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateStorage(j.Storage)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	}
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		u, err := url.Parse(strings.TrimSpace(s.HTTP.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  fmt.Sprintf("http source requires an absolute http(s) url, got %q", s.HTTP.URL),
			})
		}
		if s.HTTP.MaxRetries < 0 || s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http",
				Message:  "max_retries and timeout_seconds must not be negative",
			})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.http.insecure_skip_verify",
				Message:  "TLS certificate verification is disabled",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q", s.Kind),
		})
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if p.Kind != "" && p.Kind != "csv" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; only csv is supported", p.Kind),
		})
	}
	if _, err := p.Dialect(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options",
			Message:  err.Error(),
		})
	}
	types, err := p.Types()
	if err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.types",
			Message:  err.Error(),
		})
	}
	names := p.Options.StringSlice("names")
	if types != nil && names != nil && len(types) != len(names) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.names",
			Message:  fmt.Sprintf("%d names for %d types", len(names), len(types)),
		})
	}
	if v := p.Options.Any("header"); v != nil {
		s, isString := v.(string)
		_, isBool := v.(bool)
		if !isBool && !(isString && validHeader(s)) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.header",
				Message:  fmt.Sprintf("header must be true, false or \"auto\", got %v", v),
			})
		}
	}
	if p.Options.Bool("fill", false) && !p.Options.Bool("skip_empty_lines", false) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.options.fill",
			Message:  "fill without skip_empty_lines turns every blank line into an all-NA row",
		})
	}

	return issues
}

func validHeader(s string) bool {
	switch strings.ToLower(s) {
	case "auto", "true", "false", "yes", "no":
		return true
	}
	return false
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	neg := []struct {
		path string
		v    int
	}{
		{"runtime.workers", r.Workers},
		{"runtime.chunks", r.Chunks},
		{"runtime.lookahead_lines", r.LookaheadLines},
		{"runtime.consistent_rows", r.ConsistentRows},
		{"runtime.min_chunk_size", r.MinChunkSize},
		{"runtime.batch_size", r.BatchSize},
	}
	for _, n := range neg {
		if n.v < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     n.path,
				Message:  fmt.Sprintf("%s must not be negative", n.path[len("runtime."):]),
			})
		}
	}
	if r.Workers > 0 && r.Chunks > 0 && r.Chunks < r.Workers {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.chunks",
			Message:  fmt.Sprintf("chunks=%d is below workers=%d; some workers stay idle", r.Chunks, r.Workers),
		})
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch s.Kind {
	case "", "none":
		return nil
	case "postgres":
	default:
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; only postgres is supported", s.Kind),
		})
	}

	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}

	return issues
}
