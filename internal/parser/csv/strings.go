package csv

import (
	"math"

	"chunkread/internal/dialect"
	"chunkread/internal/field"
)

// span is the content of one scanned field.
type span struct {
	start, end int
	quoted     bool
	escaped    bool
}

// scanString scans one field starting at Ch (leading whitespace already
// skipped) and leaves Ch just past it: on the terminator for unquoted fields,
// after the closing quote for quoted ones. It reports false for a quoted
// field that never closes; Ch is then unchanged.
func (c *Context) scanString() (span, bool) {
	ch := c.Ch
	if ch >= c.EOF || !c.D.Quoting() || c.Buf[ch] != c.D.Quote {
		return c.scanUnquoted(ch), true
	}
	q := c.D.Quote
	buf := c.Buf
	s := span{start: ch + 1, quoted: true}

	switch c.D.QuoteRule {
	case dialect.QuoteDoubled:
		for i := s.start; i < c.EOF; i++ {
			if buf[i] != q {
				continue
			}
			if i+1 < c.EOF && buf[i+1] == q {
				s.escaped = true
				i++
				continue
			}
			s.end = i
			c.Ch = i + 1
			return s, true
		}
		return span{}, false

	case dialect.QuoteEscaped:
		for i := s.start; i < c.EOF; i++ {
			b := buf[i]
			if b == '\\' && i+1 < c.EOF && (buf[i+1] == q || buf[i+1] == '\\') {
				s.escaped = true
				i++
				continue
			}
			if b == q {
				s.end = i
				c.Ch = i + 1
				return s, true
			}
		}
		return span{}, false

	case dialect.QuoteVerbatim:
		for i := s.start; i < c.EOF; i++ {
			b := buf[i]
			if (b == '\n' || b == '\r') && c.isEOLAt(i) {
				break
			}
			if b == q && c.endOfFieldAt(i+1) {
				s.end = i
				c.Ch = i + 1
				return s, true
			}
			if b == c.D.Sep {
				// A later `"<sep>` or `"<eol>` on this line still closes the
				// field; otherwise this separator ends an unquoted field.
				for j := i + 1; j < c.EOF; j++ {
					if (buf[j] == '\n' || buf[j] == '\r') && c.isEOLAt(j) {
						break
					}
					if buf[j] == q && c.endOfFieldAt(j+1) {
						s.end = j
						c.Ch = j + 1
						return s, true
					}
				}
				break
			}
		}
		// The opening quote was ordinary data.
		return c.scanUnquoted(ch), true
	}
	return c.scanUnquoted(ch), true
}

func (c *Context) scanUnquoted(ch int) span {
	s := span{start: ch}
	for ch < c.EOF && !c.endOfFieldAt(ch) {
		ch++
	}
	end := ch
	if c.D.StripWhitespace {
		for end > s.start && c.isWhite(c.Buf[end-1]) {
			end--
		}
	}
	s.end = end
	c.Ch = ch
	return s
}

func (c *Context) strCell(s span) (field.Cell, bool) {
	off := s.start - c.Anchor
	n := s.end - s.start
	if off < 0 || uint64(off) > math.MaxUint32 || n > field.MaxStringLen {
		return 0, false
	}
	return field.StrCell(uint32(off), n, s.escaped), true
}

// ParseString reads a quoted or unquoted string field. It fails only when a
// quoted field never closes; the caller checks what follows the field.
func ParseString(c *Context) bool {
	start := c.Ch
	s, ok := c.scanString()
	if !ok {
		return false
	}
	cell, ok := c.strCell(s)
	if !ok {
		c.Ch = start
		return false
	}
	c.Target = cell
	return true
}

// ParseRawField captures the bytes up to the next separator or newline as an
// unquoted string, ignoring quote characters. It is the fallback for fields
// rejected with StatusMalformedQuote.
func ParseRawField(c *Context) bool {
	start := c.Ch
	if c.D.StripWhitespace {
		c.SkipWhitespace()
	}
	cell, ok := c.strCell(c.scanUnquoted(c.Ch))
	if !ok {
		c.Ch = start
		return false
	}
	c.Target = cell
	return true
}
