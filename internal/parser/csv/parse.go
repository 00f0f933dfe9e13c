package csv

import (
	"chunkread/internal/field"
)

// FieldParser consumes one value at c.Ch. On success it writes c.Target and
// advances c.Ch past the value; on failure it leaves c.Ch unchanged.
type FieldParser func(c *Context) bool

// Status is the result of ParseField.
type Status uint8

const (
	// StatusOK: a value of the requested type was read.
	StatusOK Status = iota
	// StatusNA: the field is missing (NA token, blank, or empty numeric).
	StatusNA
	// StatusMismatch: a value is present but is not of the requested type.
	StatusMismatch
	// StatusMalformedQuote: a string field violates the quote rule.
	StatusMalformedQuote
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNA:
		return "na"
	case StatusMismatch:
		return "mismatch"
	case StatusMalformedQuote:
		return "malformed_quote"
	}
	return "unknown"
}

var parsers = [...]FieldParser{
	field.Bool:    ParseBool,
	field.Int32:   ParseInt32,
	field.Int64:   ParseInt64,
	field.Float64: ParseFloat64,
	field.String:  ParseString,
}

// ParserFor returns the field parser for t, or nil for an unknown type.
func ParserFor(t field.Type) FieldParser {
	if !t.Valid() {
		return nil
	}
	return parsers[t]
}

// boolSpellings is the fixed set of accepted boolean literals.
var boolSpellings = []struct {
	text string
	val  bool
}{
	{"true", true}, {"True", true}, {"TRUE", true}, {"1", true},
	{"false", false}, {"False", false}, {"FALSE", false}, {"0", false},
}

// ParseBool reads one of the fixed boolean spellings. It only matches the
// word; ParseField checks what follows it.
func ParseBool(c *Context) bool {
	for _, sp := range boolSpellings {
		end := c.Ch + len(sp.text)
		if end > c.EOF || string(c.Buf[c.Ch:end]) != sp.text {
			continue
		}
		if end < c.EOF && isAlnum(c.Buf[end]) {
			continue
		}
		c.Target = field.BoolCell(sp.val)
		c.Ch = end
		return true
	}
	return false
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func (c *Context) endOfFieldAfterWhite(i int) bool {
	if c.D.StripWhitespace {
		for i < c.EOF && c.isWhite(c.Buf[i]) {
			i++
		}
	}
	return c.endOfFieldAt(i)
}

// finishField skips trailing whitespace when stripping and reports whether
// the field ends at Ch.
func (c *Context) finishField() bool {
	if c.D.StripWhitespace {
		c.SkipWhitespace()
	}
	return c.AtEndOfField()
}

// atNA reports whether the field at Ch is missing, and if so moves Ch to its
// end. The check is the same for every target type.
func (c *Context) atNA() bool {
	if end := c.EndNAString(c.Ch); end >= 0 {
		if c.endOfFieldAfterWhite(end) {
			c.Ch = end
			c.finishField()
			return true
		}
	}
	if c.D.BlankIsNA && c.AtEndOfField() {
		return true
	}
	return false
}

// ParseField parses one field as type t, leaving Ch on the field terminator.
//
// NA detection runs first and is independent of t. For non-string types an
// empty field is NA as well, and a value wrapped in quotes is accepted. On
// StatusMismatch or StatusMalformedQuote Ch is restored and Target holds the
// NA sentinel of t.
func ParseField(c *Context, t field.Type) Status {
	start := c.Ch
	if c.D.StripWhitespace {
		c.SkipWhitespace()
	}
	if c.atNA() {
		c.Target = field.NA(t)
		return StatusNA
	}

	if t == field.String {
		if ParseString(c) && c.finishField() {
			return StatusOK
		}
		c.Ch = start
		c.Target = field.NA(t)
		return StatusMalformedQuote
	}

	if c.AtEndOfField() {
		c.Target = field.NA(t)
		return StatusNA
	}
	quoted := c.D.Quoting() && c.Buf[c.Ch] == c.D.Quote
	if quoted {
		c.Ch++
		if c.Ch < c.EOF && c.Buf[c.Ch] == c.D.Quote {
			// "" in a non-string column.
			c.Ch++
			if c.finishField() {
				c.Target = field.NA(t)
				return StatusNA
			}
			c.Ch = start
			c.Target = field.NA(t)
			return StatusMismatch
		}
	}
	ok := parsers[t](c)
	if ok && quoted {
		if c.Ch < c.EOF && c.Buf[c.Ch] == c.D.Quote {
			c.Ch++
		} else {
			ok = false
		}
	}
	if ok && c.finishField() {
		return StatusOK
	}
	c.Ch = start
	c.Target = field.NA(t)
	return StatusMismatch
}
