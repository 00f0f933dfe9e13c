// Package chunk splits an input buffer into byte ranges that can be parsed
// independently and moves each tentative split to a genuine record start.
//
// Resolution is heuristic: a candidate line start is accepted when a run of
// consecutive records beginning there all tokenize cleanly and have the
// expected number of fields. When quoted fields may span lines, the run is
// extended up to the first record holding a quote character, since a start
// inside a quoted field flips quote parity and the closing quote then lands
// inside an unquoted field. A boundary that cannot be confirmed within the
// lookahead bound is reported as Unresolvable rather than guessed; the reader
// then re-scans that region serially.
package chunk

import (
	"bytes"
	"fmt"

	"chunkread/internal/dialect"
	"chunkread/internal/parser/csv"
)

const (
	// DefaultLookaheadLines bounds how many candidate line starts are tried
	// after a tentative boundary before giving up.
	DefaultLookaheadLines = 100

	// DefaultConsistentRows is how many consecutive well-formed records must
	// follow a candidate for it to be accepted.
	DefaultConsistentRows = 5

	// DefaultMinChunkSize keeps small inputs in a single chunk.
	DefaultMinChunkSize = 64 << 10

	// MaxChunkSize keeps string cell offsets within 32 bits.
	MaxChunkSize = 1 << 30
)

// Boundary is the terminal state of a resolved chunk start.
type Boundary uint8

const (
	// Verified: the start is the beginning of the span or the end of input.
	Verified Boundary = iota
	// Resynchronized: a tentative split was moved to a line start that
	// passed the record checks. It is still a candidate: a quoted field
	// longer than the lookahead with no quote after it can fool the checks,
	// and only the reader's sequencing pass confirms the start.
	Resynchronized
	// Unresolvable: no record start was confirmed within the lookahead.
	Unresolvable
)

func (b Boundary) String() string {
	switch b {
	case Verified:
		return "verified"
	case Resynchronized:
		return "resynchronized"
	case Unresolvable:
		return "unresolvable"
	}
	return fmt.Sprintf("Boundary(%d)", uint8(b))
}

// Span is a [Start, End) byte range of the input buffer.
type Span struct {
	Start, End int
}

func (s Span) Len() int { return s.End - s.Start }

// Coordinates describe one chunk. They are immutable once returned by
// ResolveBoundaries.
type Coordinates struct {
	Index int

	Start, End int

	// StartVerified is false only for Unresolvable boundaries. A true value
	// on a Resynchronized start means the chunk may be parsed in parallel,
	// not that the start is proven; see Resynchronized.
	StartVerified bool

	IsLast bool

	Boundary Boundary
}

func (cc Coordinates) String() string {
	return fmt.Sprintf("chunk %d [%d,%d) %s", cc.Index, cc.Start, cc.End, cc.Boundary)
}

// Options tunes boundary resolution. Zero values select the defaults.
type Options struct {
	LookaheadLines int
	ConsistentRows int
	MinChunkSize   int
}

func (o Options) withDefaults() Options {
	if o.LookaheadLines <= 0 {
		o.LookaheadLines = DefaultLookaheadLines
	}
	if o.ConsistentRows <= 0 {
		o.ConsistentRows = DefaultConsistentRows
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = DefaultMinChunkSize
	}
	return o
}

// Split returns n+1 evenly spaced offsets covering span, where n is the
// requested count adjusted so that no chunk is smaller than minSize (unless
// the whole span is) or larger than MaxChunkSize.
func Split(span Span, n, minSize int) []int {
	size := span.Len()
	if size <= 0 {
		return []int{span.Start, span.Start}
	}
	if n < 1 {
		n = 1
	}
	if minSize < 1 {
		minSize = 1
	}
	if size/n < minSize {
		n = size / minSize
		if n < 1 {
			n = 1
		}
	}
	if least := (size + MaxChunkSize - 1) / MaxChunkSize; n < least {
		n = least
	}
	out := make([]int, n+1)
	for i := 0; i <= n; i++ {
		out[i] = span.Start + int(int64(size)*int64(i)/int64(n))
	}
	return out
}

// acceptable reports whether a record with n fields can appear in a file
// with ncols columns under the fill and skipEmptyLines policies.
func acceptable(n, ncols int, fill, skipEmptyLines bool) bool {
	switch {
	case n == ncols:
		return true
	case n == 0:
		return skipEmptyLines || ncols == 1
	case n > 0 && n < ncols:
		return fill
	}
	return false
}

// NextGoodLineStart searches forward from cc.Start for the first line start
// followed by ConsistentRows well-formed records (fewer if EOF comes first).
// Under the doubled and escaped quote rules the records must also stay
// well-formed up to and including the first one that contains the quote
// character, within LookaheadLines records. c is repositioned freely. It returns the accepted offset and Resynchronized,
// or the end of input and Verified when no further line start exists, or
// cc.Start and Unresolvable when the lookahead is exhausted.
func NextGoodLineStart(c *csv.Context, cc Coordinates, ncols int, fill, skipEmptyLines bool, opts Options) (int, Boundary) {
	opts = opts.withDefaults()
	if cc.Start >= c.EOF {
		return c.EOF, Verified
	}
	parity := spansLines(c.D)
	c.Ch = cc.Start
	for attempt := 0; attempt < opts.LookaheadLines; attempt++ {
		if !c.NextLine() || c.Ch >= c.EOF {
			return c.EOF, Verified
		}
		candidate := c.Ch
		if consistent(c, ncols, fill, skipEmptyLines, parity, opts) {
			return candidate, Resynchronized
		}
		c.Ch = candidate
	}
	return cc.Start, Unresolvable
}

// spansLines reports whether a quoted field may contain newlines.
func spansLines(d *dialect.Dialect) bool {
	return d.QuoteRule == dialect.QuoteDoubled || d.QuoteRule == dialect.QuoteEscaped
}

// consistent reads records from c.Ch and reports whether they all have an
// acceptable field count. It stops after ConsistentRows records, or with
// parity set, after ConsistentRows records and one holding a quote.
func consistent(c *csv.Context, ncols int, fill, skipEmptyLines, parity bool, opts Options) bool {
	sawQuote := !parity
	for row := 0; c.Ch < c.EOF; row++ {
		if row >= opts.ConsistentRows && (sawQuote || row >= opts.LookaheadLines) {
			return true
		}
		recStart := c.Ch
		n := c.CountFieldsStrict()
		if n < 0 || !acceptable(n, ncols, fill, skipEmptyLines) {
			return false
		}
		if !sawQuote && bytes.IndexByte(c.Buf[recStart:c.Ch], c.D.Quote) >= 0 {
			sawQuote = true
		}
	}
	return true
}

// ResolveBoundaries splits span into about n chunks and resolves every split
// to a record start. Starts are strictly increasing, empty chunks are
// dropped, and each End equals the next chunk's Start. Chunk 0 always starts
// at span.Start and is Verified.
func ResolveBoundaries(buf []byte, span Span, n, ncols int, fill, skipEmptyLines bool, d *dialect.Dialect, opts Options) []Coordinates {
	opts = opts.withDefaults()
	if span.End > len(buf) {
		span.End = len(buf)
	}
	if span.Len() <= 0 {
		return nil
	}
	splits := Split(span, n, opts.MinChunkSize)
	c := csv.NewContext(buf, span.Start, span.End, d)

	out := make([]Coordinates, 0, len(splits)-1)
	out = append(out, Coordinates{Start: span.Start, StartVerified: true, Boundary: Verified})
	for _, tentative := range splits[1 : len(splits)-1] {
		prev := out[len(out)-1].Start
		if tentative <= prev {
			continue
		}
		start, b := NextGoodLineStart(c, Coordinates{Start: tentative}, ncols, fill, skipEmptyLines, opts)
		if start >= span.End {
			break
		}
		if start <= prev {
			continue
		}
		out = append(out, Coordinates{
			Start:         start,
			StartVerified: b != Unresolvable,
			Boundary:      b,
		})
	}
	for i := range out {
		out[i].Index = i
		if i+1 < len(out) {
			out[i].End = out[i+1].Start
		} else {
			out[i].End = span.End
			out[i].IsLast = true
		}
	}
	return out
}
