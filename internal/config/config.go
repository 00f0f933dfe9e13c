// Package config defines the serializable job model for chunkread. A job
// file names the input, the dialect and column setup, the runtime knobs of
// the parallel reader, and optional sinks. It is read from JSON or, when the
// file ends in .yaml/.yml, from the same document in YAML.
//
// Example (trimmed):
//
//	{
//	  "job":    "vehicles",
//	  "source": { "kind": "file", "file": { "path": "data/vehicles.csv.zst" } },
//	  "parser": { "kind": "csv", "options": { "sep": ";", "dec": ",", "header": "auto" } },
//	  "runtime": { "workers": 8, "verify_buffer": true },
//	  "storage": { "kind": "postgres", "db": { "dsn": "...", "table": "public.vehicles" } }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"chunkread/internal/dialect"
	"chunkread/internal/field"
)

// Job is the top-level object decoded from a job file.
type Job struct {
	// Job labels metrics and log lines.
	Job string `json:"job" yaml:"job"`

	Source  Source        `json:"source" yaml:"source"`
	Parser  Parser        `json:"parser" yaml:"parser"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Export  Export        `json:"export" yaml:"export"`
}

// RuntimeConfig controls the parallel reader and the loader.
type RuntimeConfig struct {
	// Workers bounds concurrent chunk parses; 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
	// Chunks is the requested chunk count; 0 means one per worker.
	Chunks int `json:"chunks" yaml:"chunks"`

	LookaheadLines int `json:"lookahead_lines" yaml:"lookahead_lines"`
	ConsistentRows int `json:"consistent_rows" yaml:"consistent_rows"`
	MinChunkSize   int `json:"min_chunk_size" yaml:"min_chunk_size"`

	VerifyBuffer bool `json:"verify_buffer" yaml:"verify_buffer"`
	// ValidateUTF8 defaults to true; set it to false to keep invalid bytes
	// in string fields instead of failing the read.
	ValidateUTF8 *bool `json:"validate_utf8" yaml:"validate_utf8"`

	// BatchSize is the number of rows per COPY batch.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// UTF8Check reports whether string fields are checked for valid UTF-8.
func (r RuntimeConfig) UTF8Check() bool {
	return r.ValidateUTF8 == nil || *r.ValidateUTF8
}

// Source identifies the input.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string     `json:"kind" yaml:"kind"`
	File SourceFile `json:"file" yaml:"file"`
	HTTP SourceHTTP `json:"http" yaml:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is a local file; a .zst suffix means zstd-compressed.
	Path string `json:"path" yaml:"path"`
}

// SourceHTTP holds configuration for the "http" source kind. The body is
// downloaded to a temporary file before parsing.
type SourceHTTP struct {
	URL string `json:"url" yaml:"url"`
	// MaxRetries is the number of retries on 5xx, 429 and transport errors.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// TimeoutSeconds bounds each attempt; 0 means 30.
	TimeoutSeconds     int  `json:"timeout_seconds" yaml:"timeout_seconds"`
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Parser selects the dialect and column setup.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the accessors below. Keys:
	//   sep, quote, dec (one-byte strings; "\t" or "tab" for a tab),
	//   quote_rule (doubled|escaped|verbatim|none), strip_whitespace,
	//   blank_is_na, cr_is_newline (bool), na_strings ([]string),
	//   header (true|false|"auto"), names ([]string), types ([]string),
	//   fill, skip_empty_lines, nfc (bool), sample_rows (int)
	Options Options `json:"options" yaml:"options"`
}

// Storage selects the optional sink for the parsed table.
type Storage struct {
	// Kind selects the storage implementation: "" (none) or "postgres".
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	// DSN is the connection string for pgxpool (e.g., postgresql://...).
	DSN string `json:"dsn" yaml:"dsn"`

	// Table is the fully qualified table name (e.g., "public.my_table").
	Table string `json:"table" yaml:"table"`

	// AutoCreateTable creates the table from the final column types.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// Export configures the optional CBOR dump of the parsed table.
type Export struct {
	Path string `json:"path" yaml:"path"`
}

// Load reads a job file. Files ending in .yaml or .yml are decoded as YAML,
// everything else as JSON. Unknown JSON fields are rejected.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	defer f.Close()
	j, err := Decode(f, path)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Decode reads a job document from r. name picks the format the way Load
// does and labels errors.
func Decode(r io.Reader, name string) (Job, error) {
	var j Job
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&j); err != nil {
			return j, fmt.Errorf("config: decode yaml %s: %w", name, err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return j, fmt.Errorf("config: decode json %s: %w", name, err)
		}
	}
	if j.Parser.Options == nil {
		j.Parser.Options = Options{}
	}
	return j, nil
}

// Dialect builds and validates the dialect described by the options.
// Missing keys keep dialect.Default values.
func (p Parser) Dialect() (dialect.Dialect, error) {
	d := dialect.Default()
	o := p.Options
	var err error
	if d.Sep, err = o.Byte("sep", d.Sep); err != nil {
		return d, err
	}
	if o.Has("quote") && o.String("quote", "") == "" {
		d.QuoteRule = dialect.QuoteNone
	} else if d.Quote, err = o.Byte("quote", d.Quote); err != nil {
		return d, err
	}
	if s := o.String("quote_rule", ""); s != "" {
		if d.QuoteRule, err = dialect.ParseQuoteRule(s); err != nil {
			return d, fmt.Errorf("parser.options.quote_rule: %w", err)
		}
	}
	if d.Dec, err = o.Byte("dec", d.Dec); err != nil {
		return d, err
	}
	d.StripWhitespace = o.Bool("strip_whitespace", d.StripWhitespace)
	d.BlankIsNA = o.Bool("blank_is_na", d.BlankIsNA)
	d.CRIsNewline = o.Bool("cr_is_newline", d.CRIsNewline)
	if o.Has("na_strings") {
		d.NAStrings = o.StringSlice("na_strings")
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("parser.options: %w", err)
	}
	return d, nil
}

// Header reports how the first record is treated: auto means sniff decides.
func (p Parser) Header() (present, auto bool) {
	switch v := p.Options.Any("header").(type) {
	case bool:
		return v, false
	case string:
		switch strings.ToLower(v) {
		case "true", "yes":
			return true, false
		case "false", "no":
			return false, false
		}
	}
	return false, true
}

// Types returns the configured initial column types, or nil when the guess
// is left to sniffing.
func (p Parser) Types() ([]field.Type, error) {
	names := p.Options.StringSlice("types")
	if names == nil {
		return nil, nil
	}
	out := make([]field.Type, len(names))
	for i, s := range names {
		t, err := field.ParseType(s)
		if err != nil {
			return nil, fmt.Errorf("parser.options.types[%d]: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Options is a small helper to fetch typed values from a decoded options
// object. It performs only minimal coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64
// and YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Byte returns a single-byte setting such as a separator. "tab" and the
// two-character escape `\t` both mean a tab. Any other value longer than one
// byte is an error.
func (o Options) Byte(key string, def byte) (byte, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("parser.options.%s: want a string, got %T", key, v)
	}
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}
	if len(s) != 1 {
		return def, fmt.Errorf("parser.options.%s: %q is not a single byte", key, s)
	}
	return s[0], nil
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	tmp := map[string]any{}
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
