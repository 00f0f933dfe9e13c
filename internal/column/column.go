// Package column holds merged parse results: one Column per input column,
// with the typed cells of every chunk concatenated in file order.
//
// String cells still point into the caller's buffer. They are resolved on
// access, or all at once with Decode, which caches the result.
package column

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"chunkread/internal/dialect"
	"chunkread/internal/field"
)

var (
	// ErrDecoded is returned by Decode when the column already holds a
	// decoded cache. Decoding is single-use; read the cache with Strings.
	ErrDecoded = errors.New("column already decoded")

	// ErrNotString is returned by Decode for non-string columns.
	ErrNotString = errors.New("column is not a string column")
)

// segment records where one chunk's cells begin and the anchor their string
// offsets are relative to.
type segment struct {
	row    int
	anchor int
}

// Column is the merged output for one input column.
type Column struct {
	Name string
	Type field.Type

	cells []field.Cell
	segs  []segment
	buf   []byte
	quote byte
	rule  dialect.QuoteRule

	// decoded is the one-shot string cache filled by Decode. It stays nil
	// until then and is never replaced afterwards.
	decoded []string
}

// New returns an empty column that resolves strings against buf using the
// quoting conventions of d.
func New(name string, t field.Type, buf []byte, d *dialect.Dialect) *Column {
	return &Column{
		Name:  name,
		Type:  t,
		buf:   buf,
		quote: d.Quote,
		rule:  d.QuoteRule,
	}
}

// Append adds one chunk's cells. anchor is the chunk start the string cells
// were parsed against.
func (c *Column) Append(cells []field.Cell, anchor int) {
	if len(cells) == 0 {
		return
	}
	c.segs = append(c.segs, segment{row: len(c.cells), anchor: anchor})
	c.cells = append(c.cells, cells...)
}

func (c *Column) Len() int { return len(c.cells) }

func (c *Column) Cell(i int) field.Cell { return c.cells[i] }

func (c *Column) IsNA(i int) bool { return c.cells[i].IsNA(c.Type) }

func (c *Column) anchor(i int) int {
	k := sort.Search(len(c.segs), func(k int) bool { return c.segs[k].row > i }) - 1
	return c.segs[k].anchor
}

// Raw returns the undecoded bytes of string cell i, aliasing the input
// buffer, and whether they still contain quote escapes. It returns nil for
// NA cells and non-string columns.
func (c *Column) Raw(i int) ([]byte, bool) {
	if c.Type != field.String || c.IsNA(i) {
		return nil, false
	}
	ref := c.cells[i].Str()
	start := c.anchor(i) + int(ref.Offset)
	return c.buf[start : start+ref.Len : start+ref.Len], ref.Escaped
}

func (c *Column) str(i int) string {
	raw, escaped := c.Raw(i)
	if escaped {
		return string(Unescape(nil, raw, c.quote, c.rule))
	}
	return string(raw)
}

// Value returns cell i as bool, int32, int64, float64 or string, or nil
// when it is NA. String values come from the decode cache when present.
func (c *Column) Value(i int) any {
	if c.IsNA(i) {
		return nil
	}
	cell := c.cells[i]
	switch c.Type {
	case field.Bool:
		return cell.Bool()
	case field.Int32:
		return cell.Int32()
	case field.Int64:
		return cell.Int64()
	case field.Float64:
		return cell.Float64()
	}
	if c.decoded != nil {
		return c.decoded[i]
	}
	return c.str(i)
}

// Decode converts every string cell once and caches the result, optionally
// normalizing to Unicode NFC. NA cells decode to "". A second call returns
// ErrDecoded and leaves the cache untouched.
func (c *Column) Decode(nfc bool) error {
	if c.Type != field.String {
		return fmt.Errorf("decode %q: %w", c.Name, ErrNotString)
	}
	if c.decoded != nil {
		return fmt.Errorf("decode %q: %w", c.Name, ErrDecoded)
	}
	out := make([]string, len(c.cells))
	for i := range c.cells {
		if c.IsNA(i) {
			continue
		}
		s := c.str(i)
		if nfc {
			s = norm.NFC.String(s)
		}
		out[i] = s
	}
	c.decoded = out
	return nil
}

// Strings returns the decode cache, or nil if Decode has not run.
func (c *Column) Strings() []string { return c.decoded }

// Unescape appends raw to dst with quote escapes resolved for rule.
func Unescape(dst, raw []byte, quote byte, rule dialect.QuoteRule) []byte {
	switch rule {
	case dialect.QuoteDoubled:
		for i := 0; i < len(raw); i++ {
			dst = append(dst, raw[i])
			if raw[i] == quote && i+1 < len(raw) && raw[i+1] == quote {
				i++
			}
		}
		return dst
	case dialect.QuoteEscaped:
		for i := 0; i < len(raw); i++ {
			if raw[i] == '\\' && i+1 < len(raw) && (raw[i+1] == quote || raw[i+1] == '\\') {
				i++
			}
			dst = append(dst, raw[i])
		}
		return dst
	}
	return append(dst, raw...)
}

// Table is the merged result of a read.
type Table struct {
	Columns []*Column
	Rows    int
}

// Column returns the column called name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Types lists the column types in order.
func (t *Table) Types() []field.Type {
	out := make([]field.Type, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Type
	}
	return out
}

// Row returns the values of row i, with nil for NA.
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = c.Value(i)
	}
	return out
}
