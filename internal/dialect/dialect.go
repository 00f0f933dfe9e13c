// Package dialect describes the textual conventions of a delimited file:
// field separator, quoting, decimal mark and the spellings of missing values.
//
// A Dialect is built once per job, validated, and then shared read-only by
// every parsing worker. Nothing in this package mutates a Dialect after
// Validate has accepted it.
package dialect

import (
	"errors"
	"fmt"
	"strings"
)

// QuoteRule selects how quoted fields are recognized and how quote characters
// inside them are escaped.
type QuoteRule int8

const (
	// QuoteDoubled: fields may be quoted, embedded quotes are doubled ("").
	// This is RFC 4180. Quoted fields may contain newlines.
	QuoteDoubled QuoteRule = iota

	// QuoteEscaped: fields may be quoted, embedded quotes and backslashes are
	// preceded by a backslash (\" and \\). Quoted fields may contain newlines.
	QuoteEscaped

	// QuoteVerbatim: fields may be quoted but embedded quotes are not escaped.
	// A quote closes the field only when followed by the separator, a newline
	// or the end of input. Quoted fields never span lines.
	QuoteVerbatim

	// QuoteNone: no quoting; the quote character is an ordinary byte.
	QuoteNone
)

var quoteRuleNames = [...]string{"doubled", "escaped", "verbatim", "none"}

func (r QuoteRule) String() string {
	if r < 0 || int(r) >= len(quoteRuleNames) {
		return fmt.Sprintf("QuoteRule(%d)", int8(r))
	}
	return quoteRuleNames[r]
}

// ParseQuoteRule maps a config spelling ("doubled", "escaped", "verbatim",
// "none") to a QuoteRule.
func ParseQuoteRule(s string) (QuoteRule, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range quoteRuleNames {
		if key == name {
			return QuoteRule(i), nil
		}
	}
	return 0, fmt.Errorf("unknown quote rule %q", s)
}

// Dialect is the immutable parsing configuration shared by all workers.
type Dialect struct {
	// Sep is the field separator.
	Sep byte

	// Quote is the quoting character (ignored under QuoteNone).
	Quote byte

	QuoteRule QuoteRule

	// Dec is the decimal separator for floating point values: '.' or ','.
	Dec byte

	// StripWhitespace removes spaces/tabs around fields (see WhiteChar).
	StripWhitespace bool

	// BlankIsNA treats a zero-length field as missing for every type.
	BlankIsNA bool

	// CRIsNewline accepts a lone '\r' as a line terminator.
	CRIsNewline bool

	// NAStrings are the exact spellings recognized as missing values.
	NAStrings []string
}

// Default returns the common comma-separated dialect with "NA" as the only
// missing-value spelling.
func Default() Dialect {
	return Dialect{
		Sep:             ',',
		Quote:           '"',
		QuoteRule:       QuoteDoubled,
		Dec:             '.',
		StripWhitespace: true,
		NAStrings:       []string{"NA"},
	}
}

// WhiteChar reports which whitespace bytes may be skipped around fields:
// '\t' when the separator is a space, ' ' when it is a tab, and 0 (both)
// otherwise.
func (d *Dialect) WhiteChar() byte {
	switch d.Sep {
	case ' ':
		return '\t'
	case '\t':
		return ' '
	default:
		return 0
	}
}

// IsWhite reports whether b is skippable whitespace under this dialect.
func (d *Dialect) IsWhite(b byte) bool {
	switch d.WhiteChar() {
	case 0:
		return b == ' ' || b == '\t'
	default:
		return b == d.WhiteChar()
	}
}

// Quoting reports whether the quote character has any meaning.
func (d *Dialect) Quoting() bool { return d.QuoteRule != QuoteNone }

// Errors returned by Validate.
var (
	ErrSeparator = errors.New("invalid separator")
	ErrQuote     = errors.New("invalid quote character")
	ErrDecimal   = errors.New("invalid decimal separator")
	ErrNAString  = errors.New("invalid NA string")
)

// Validate checks that the dialect is internally consistent. All problems
// are reported, joined with errors.Join.
func (d *Dialect) Validate() error {
	var errs []error
	if isEOL(d.Sep) || d.Sep == 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrSeparator, d.Sep))
	}
	if d.QuoteRule < QuoteDoubled || d.QuoteRule > QuoteNone {
		errs = append(errs, fmt.Errorf("%w: unknown rule %d", ErrQuote, d.QuoteRule))
	}
	if d.Quoting() {
		if d.Quote == 0 || isEOL(d.Quote) || d.Quote == d.Sep {
			errs = append(errs, fmt.Errorf("%w: %q", ErrQuote, d.Quote))
		}
	}
	if d.Dec != '.' && d.Dec != ',' {
		errs = append(errs, fmt.Errorf("%w: %q", ErrDecimal, d.Dec))
	} else if d.Dec == d.Sep {
		errs = append(errs, fmt.Errorf("%w: %q is also the separator", ErrDecimal, d.Dec))
	}
	for _, na := range d.NAStrings {
		if strings.IndexByte(na, d.Sep) >= 0 || strings.ContainsAny(na, "\r\n") {
			errs = append(errs, fmt.Errorf("%w: %q contains a separator or newline", ErrNAString, na))
			continue
		}
		if d.Quoting() && strings.IndexByte(na, d.Quote) >= 0 {
			errs = append(errs, fmt.Errorf("%w: %q contains the quote character", ErrNAString, na))
			continue
		}
		if d.StripWhitespace && na != strings.Trim(na, " \t") {
			errs = append(errs, fmt.Errorf("%w: %q has surrounding whitespace that would be stripped", ErrNAString, na))
		}
	}
	return errors.Join(errs...)
}

// HasBlankNA reports whether a zero-length field is a missing value, either
// through BlankIsNA or because "" is listed in NAStrings.
func (d *Dialect) HasBlankNA() bool {
	if d.BlankIsNA {
		return true
	}
	for _, na := range d.NAStrings {
		if na == "" {
			return true
		}
	}
	return false
}

func isEOL(b byte) bool { return b == '\n' || b == '\r' }
