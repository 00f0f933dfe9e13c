// Package sniff inspects the start of an input and a few points further in
// to supply what the reader needs from its caller: the column count, whether
// the first record is a header, column names, where data starts, and an
// initial type per column.
package sniff

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"chunkread/internal/chunk"
	"chunkread/internal/column"
	"chunkread/internal/dialect"
	"chunkread/internal/field"
	"chunkread/internal/parser/csv"
)

// ErrEmpty is returned when the input holds no record.
var ErrEmpty = errors.New("sniff: no records")

// maxNameLen is PostgreSQL's identifier limit.
const maxNameLen = 63

// Options configures Sniff.
type Options struct {
	// Header forces the first record to be (true) or not be (false) a
	// header. It is ignored when AutoHeader is set.
	Header     bool
	AutoHeader bool

	// Jumps is the number of places sampled, the data start included.
	// Default 10.
	Jumps int
	// RowsPerJump is the number of records sampled at each place.
	// Default 100.
	RowsPerJump int

	Fill           bool
	SkipEmptyLines bool

	// RawNames keeps header text as is instead of normalizing it.
	RawNames bool
}

func (o Options) withDefaults() Options {
	if o.Jumps <= 0 {
		o.Jumps = 10
	}
	if o.RowsPerJump <= 0 {
		o.RowsPerJump = 100
	}
	return o
}

// Result is what Sniff found.
type Result struct {
	NCols     int
	HasHeader bool
	// Header is the decoded text of the first record when HasHeader.
	Header []string
	// Names has one unique name per column.
	Names []string
	// DataStart is the offset of the first data record.
	DataStart int
	// Types is the narrowest type per column that accepts every sampled
	// value. Columns with only NA samples get Bool.
	Types []field.Type
	// Sampled is the number of records that contributed to Types.
	Sampled int
}

// Sniff examines buf from start. start is usually past a byte order mark.
func Sniff(buf []byte, start int, d *dialect.Dialect, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	c := csv.NewContext(buf, start, len(buf), d)

	// Leading blank lines carry nothing.
	for {
		lineStart := c.Ch
		c.SkipWhitespaceAtLineStart()
		if c.Ch >= c.EOF {
			return nil, ErrEmpty
		}
		if !c.AtEOL() {
			c.Ch = lineStart
			break
		}
		c.SkipEOL()
	}
	first := c.Ch
	ncols := c.CountFields()
	switch {
	case ncols < 0:
		return nil, fmt.Errorf("sniff: first record at byte %d is not valid under the %s quote rule", first, d.QuoteRule)
	case ncols == 0:
		return nil, ErrEmpty
	}
	c.Ch = first

	header := readHeader(c, ncols)
	afterFirst := c.Ch

	res := &Result{NCols: ncols, Types: make([]field.Type, ncols)}
	for j := range res.Types {
		res.Types[j] = field.Bool
	}
	s := &sampler{c: c, ncols: ncols, opts: opts, types: res.Types}
	s.sample(afterFirst)
	span := len(buf) - afterFirst
	for k := 1; k < opts.Jumps && span > 0; k++ {
		pos := afterFirst + int(int64(span)*int64(k)/int64(opts.Jumps))
		at, b := chunk.NextGoodLineStart(c, chunk.Coordinates{Start: pos}, ncols, opts.Fill, opts.SkipEmptyLines, chunk.Options{})
		if b == chunk.Unresolvable || at >= len(buf) {
			continue
		}
		s.sample(at)
	}
	res.Sampled = s.rows

	switch {
	case opts.AutoHeader:
		res.HasHeader = s.rows > 0 && s.rejects(first)
	default:
		res.HasHeader = opts.Header
	}
	if res.HasHeader {
		res.Header = header
		res.DataStart = afterFirst
		res.Names = Names(header, opts.RawNames)
	} else {
		res.DataStart = first
		res.Names = Names(make([]string, ncols), false)
		s.widenFor(first)
	}
	return res, nil
}

// readHeader decodes the record at c.Ch as strings and leaves c.Ch at the
// next record.
func readHeader(c *csv.Context, ncols int) []string {
	out := make([]string, 0, ncols)
	for {
		st := csv.ParseField(c, field.String)
		if st == csv.StatusMalformedQuote {
			csv.ParseRawField(c)
		}
		if len(out) < ncols {
			out = append(out, cellText(c))
		}
		if c.Ch < c.EOF && c.Buf[c.Ch] == c.D.Sep && c.SkipSep() {
			continue
		}
		c.SkipEOL()
		break
	}
	for len(out) < ncols {
		out = append(out, "")
	}
	return out
}

func cellText(c *csv.Context) string {
	if c.Target.IsNA(field.String) {
		return ""
	}
	ref := c.Target.Str()
	s := c.Anchor + int(ref.Offset)
	raw := c.Buf[s : s+ref.Len]
	if ref.Escaped {
		return string(column.Unescape(nil, raw, c.D.Quote, c.D.QuoteRule))
	}
	return string(raw)
}

type sampler struct {
	c     *csv.Context
	ncols int
	opts  Options
	types []field.Type
	rows  int
	tmp   []field.Type
}

// sample reads up to RowsPerJump records from pos and widens types to fit
// those with an acceptable field count.
func (s *sampler) sample(pos int) {
	c := s.c
	c.Reset(pos)
	for n := 0; n < s.opts.RowsPerJump && c.Ch < c.EOF; {
		c.SkipWhitespaceAtLineStart()
		if c.Ch >= c.EOF {
			return
		}
		if c.AtEOL() {
			c.SkipEOL()
			continue
		}
		s.tmp = append(s.tmp[:0], s.types...)
		nf := s.record(s.tmp)
		if nf == s.ncols || (nf < s.ncols && s.opts.Fill) {
			copy(s.types, s.tmp)
			s.rows++
		}
		n++
	}
}

// record parses one record with types, widening each column until its
// value fits, and returns the field count.
func (s *sampler) record(types []field.Type) int {
	c := s.c
	nf := 0
	for {
		if nf < len(types) {
			for {
				st := csv.ParseField(c, types[nf])
				if st != csv.StatusMismatch {
					if st == csv.StatusMalformedQuote {
						csv.ParseRawField(c)
					}
					break
				}
				types[nf], _ = types[nf].Widen()
			}
		} else if csv.ParseField(c, field.String) == csv.StatusMalformedQuote {
			csv.ParseRawField(c)
		}
		nf++
		if c.Ch < c.EOF && c.Buf[c.Ch] == c.D.Sep && c.SkipSep() {
			continue
		}
		c.SkipEOL()
		return nf
	}
}

// rejects reports whether the record at pos has a value that only fits a
// string in a column whose samples are all typed, which marks it as a
// header.
func (s *sampler) rejects(pos int) bool {
	c := s.c
	c.Reset(pos)
	c.SkipWhitespaceAtLineStart()
	for j := 0; j < s.ncols; j++ {
		t := s.types[j]
		for t != field.String && csv.ParseField(c, t) == csv.StatusMismatch {
			t, _ = t.Widen()
		}
		if t == field.String {
			if s.types[j] != field.String {
				return true
			}
			if csv.ParseField(c, t) == csv.StatusMalformedQuote {
				csv.ParseRawField(c)
			}
		}
		if !(c.Ch < c.EOF && c.Buf[c.Ch] == c.D.Sep && c.SkipSep()) {
			return false
		}
	}
	return false
}

// widenFor folds the record at pos into the sampled types.
func (s *sampler) widenFor(pos int) {
	s.c.Reset(pos)
	s.c.SkipWhitespaceAtLineStart()
	s.record(s.types)
	s.rows++
}

// Names turns header text into unique column names. Blank entries become
// col<N> (1-based). Unless raw, names are normalized with NormalizeName.
// Duplicates get _2, _3, ... suffixes.
func Names(header []string, raw bool) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for j, h := range header {
		var base string
		switch {
		case strings.TrimSpace(h) == "":
			base = fmt.Sprintf("col%d", j+1)
		case raw:
			base = h
		default:
			base = NormalizeName(h)
		}
		name := base
		for k := 2; used[name]; k++ {
			name = truncate(fmt.Sprintf("%s_%d", base, k))
		}
		used[name] = true
		out[j] = name
	}
	return out
}

// NormalizeName converts arbitrary header text into a lowercase ASCII
// identifier suitable for SQL schemas:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
//  5. truncate to 63 bytes, keeping the first 10 and last 53
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return truncate(name)
}

func truncate(s string) string {
	if len(s) > maxNameLen {
		return s[:10] + s[len(s)-53:]
	}
	return s
}
