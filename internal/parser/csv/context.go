// Package csv implements the byte-level tokenizer of the parallel reader: a
// per-chunk parse cursor (Context) and one field parser per value type.
//
// A Context borrows the caller's input buffer; it never copies or retains
// bytes beyond the lifetime of a chunk attempt. Each worker owns exactly one
// Context and nothing in this package is safe for concurrent use on the same
// Context. The Dialect it points to is shared read-only.
package csv

import (
	"chunkread/internal/dialect"
	"chunkread/internal/field"
)

// Context is the mutable cursor state for parsing one chunk.
type Context struct {
	// Buf is the whole input buffer. Only Buf[:EOF] may be read.
	Buf []byte

	// Ch is the current parse position. Field parsers advance it past a
	// value they accept and leave it unchanged when they reject one.
	Ch int

	// EOF is the end of readable input.
	EOF int

	// Anchor is the origin of string cell offsets (the chunk start).
	Anchor int

	// Target receives the value of the last parsed field.
	Target field.Cell

	D *dialect.Dialect

	white    byte
	spaceSep bool
}

// NewContext returns a Context positioned at start that may read up to eof.
func NewContext(buf []byte, start, eof int, d *dialect.Dialect) *Context {
	if eof > len(buf) {
		eof = len(buf)
	}
	return &Context{
		Buf:      buf,
		Ch:       start,
		EOF:      eof,
		Anchor:   start,
		D:        d,
		white:    d.WhiteChar(),
		spaceSep: d.Sep == ' ',
	}
}

// Reset repositions the cursor and anchor at start.
func (c *Context) Reset(start int) {
	c.Ch = start
	c.Anchor = start
	c.Target = 0
}

func (c *Context) isWhite(b byte) bool {
	if c.white == 0 {
		return b == ' ' || b == '\t'
	}
	return b == c.white
}

// SkipWhitespace advances over the whitespace bytes allowed by the dialect.
func (c *Context) SkipWhitespace() {
	for c.Ch < c.EOF && c.isWhite(c.Buf[c.Ch]) {
		c.Ch++
	}
}

// SkipWhitespaceAtLineStart skips leading indentation. With a space
// separator, runs of leading spaces never delimit fields and are always
// skipped; other whitespace is only skipped when stripping.
func (c *Context) SkipWhitespaceAtLineStart() {
	if c.spaceSep {
		for c.Ch < c.EOF && c.Buf[c.Ch] == ' ' {
			c.Ch++
		}
	}
	if c.D.StripWhitespace {
		c.SkipWhitespace()
	}
}

// isEOLAt reports whether a line terminator starts at i.
func (c *Context) isEOLAt(i int) bool {
	switch c.Buf[i] {
	case '\n':
		return true
	case '\r':
		if i+1 < c.EOF && c.Buf[i+1] == '\n' {
			return true
		}
		if i+2 < c.EOF && c.Buf[i+1] == '\r' && c.Buf[i+2] == '\n' {
			return true
		}
		return c.D.CRIsNewline
	}
	return false
}

func (c *Context) endOfFieldAt(i int) bool {
	if i >= c.EOF {
		return true
	}
	b := c.Buf[i]
	if b == c.D.Sep {
		return true
	}
	return (b == '\n' || b == '\r') && c.isEOLAt(i)
}

// AtEndOfField reports whether Ch rests on the separator, a newline or EOF.
func (c *Context) AtEndOfField() bool { return c.endOfFieldAt(c.Ch) }

// AtEOL reports whether Ch rests on a newline or EOF.
func (c *Context) AtEOL() bool {
	return c.Ch >= c.EOF || c.isEOLAt(c.Ch)
}

// SkipEOL consumes one logical newline: "\n", "\n\r", "\r\n", "\r\r\n",
// and a lone "\r" when CRIsNewline is set. It reports whether a newline was
// present; Ch is unchanged when it was not.
func (c *Context) SkipEOL() bool {
	if c.Ch >= c.EOF {
		return false
	}
	buf, ch := c.Buf, c.Ch
	switch buf[ch] {
	case '\n':
		ch++
		// "\n\r" is one newline unless the '\r' starts a "\r\n".
		if ch < c.EOF && buf[ch] == '\r' && (ch+1 >= c.EOF || buf[ch+1] != '\n') {
			ch++
		}
	case '\r':
		switch {
		case ch+1 < c.EOF && buf[ch+1] == '\n':
			ch += 2
		case ch+2 < c.EOF && buf[ch+1] == '\r' && buf[ch+2] == '\n':
			ch += 3
		case c.D.CRIsNewline:
			ch++
		default:
			return false
		}
	default:
		return false
	}
	c.Ch = ch
	return true
}

// SkipSep consumes the separator at Ch and reports whether another field
// follows on the same line. With a space separator, repeated spaces count
// as one separator and trailing spaces before a newline start no field.
func (c *Context) SkipSep() bool {
	c.Ch++
	if !c.spaceSep {
		return true
	}
	for c.Ch < c.EOF && c.Buf[c.Ch] == ' ' {
		c.Ch++
	}
	return !c.AtEOL()
}

// EndNAString returns the end of the longest NA token starting at pos, or
// -1 when none matches. The empty NA string matches everywhere and yields
// pos itself; callers still have to check that the field ends there.
func (c *Context) EndNAString(pos int) int {
	best := -1
	for _, na := range c.D.NAStrings {
		end := pos + len(na)
		if end > c.EOF || end <= best {
			continue
		}
		if string(c.Buf[pos:end]) == na {
			best = end
		}
	}
	return best
}

// CountFields scans one record from Ch without producing values and returns
// its number of fields, 0 for an empty line, or -1 when the line cannot be
// tokenized under the active quote rule. On success Ch is left at the start
// of the next record; on failure it is restored.
func (c *Context) CountFields() int { return c.countFields(false) }

// CountFieldsStrict is CountFields for boundary sampling: an unquoted field
// that contains the quote character also invalidates the line, since it
// usually means the scan started inside a quoted field.
func (c *Context) CountFieldsStrict() int { return c.countFields(true) }

func (c *Context) countFields(strict bool) int {
	start := c.Ch
	c.SkipWhitespaceAtLineStart()
	if c.Ch >= c.EOF {
		return 0
	}
	if c.SkipEOL() {
		return 0
	}
	n := 1
	for {
		if c.D.StripWhitespace {
			c.SkipWhitespace()
		}
		s, ok := c.scanString()
		if !ok || (strict && !s.quoted && c.containsQuote(s.start, s.end)) {
			c.Ch = start
			return -1
		}
		if c.D.StripWhitespace {
			c.SkipWhitespace()
		}
		if c.Ch >= c.EOF {
			return n
		}
		if c.Buf[c.Ch] == c.D.Sep {
			if !c.SkipSep() {
				c.SkipEOL()
				return n
			}
			n++
			continue
		}
		if c.SkipEOL() {
			return n
		}
		c.Ch = start
		return -1
	}
}

func (c *Context) containsQuote(start, end int) bool {
	if c.D.QuoteRule != dialect.QuoteDoubled && c.D.QuoteRule != dialect.QuoteEscaped {
		return false
	}
	for i := start; i < end; i++ {
		if c.Buf[i] == c.D.Quote {
			return true
		}
	}
	return false
}

// SkipLine advances Ch to the start of the next line, honoring quoted
// fields where possible. It is used to step over rows that are rejected.
func (c *Context) SkipLine() {
	if c.CountFields() >= 0 {
		return
	}
	c.NextLine()
}

// NextLine moves Ch just past the next line terminator without regard to
// quoting and reports whether one was found. At EOF it leaves Ch at EOF.
func (c *Context) NextLine() bool {
	for c.Ch < c.EOF {
		if b := c.Buf[c.Ch]; (b == '\n' || b == '\r') && c.isEOLAt(c.Ch) {
			return c.SkipEOL()
		}
		c.Ch++
	}
	return false
}
