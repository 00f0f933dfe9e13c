package reader

import (
	"errors"
	"fmt"
)

// Kind classifies a parse problem.
type Kind uint8

const (
	// KindMalformedQuote: a quoted field broke the quote rule. Recovered by
	// capturing the field as raw text.
	KindMalformedQuote Kind = iota + 1
	// KindTypeMismatch: a value did not fit the column type. Recovered by
	// widening the column and re-parsing.
	KindTypeMismatch
	// KindBoundaryUnresolvable: no record start was confirmed near a split.
	// Recovered by a serial re-scan.
	KindBoundaryUnresolvable
	// KindColumnCountMismatch: a record had the wrong number of fields. The
	// row is NA-filled (short rows with Fill) or skipped.
	KindColumnCountMismatch
	// KindEncoding: a string field is not valid UTF-8. Fatal.
	KindEncoding
	// KindBufferModified: the input changed between parse attempts. Fatal.
	KindBufferModified
)

var kindNames = map[Kind]string{
	KindMalformedQuote:       "malformed quote",
	KindTypeMismatch:         "type mismatch",
	KindBoundaryUnresolvable: "boundary unresolvable",
	KindColumnCountMismatch:  "column count mismatch",
	KindEncoding:             "encoding error",
	KindBufferModified:       "buffer modified",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Fatal reports whether errors of this kind abort the whole read.
func (k Kind) Fatal() bool { return k == KindEncoding || k == KindBufferModified }

var (
	ErrEncoding          = errors.New("invalid UTF-8 in string field")
	ErrBufferModified    = errors.New("input buffer modified during parsing")
	ErrWideningExhausted = errors.New("column type cannot be widened further")
)

// ParseError locates a problem in the input. Non-fatal ones are collected
// in ChunkOutput.Issues; fatal ones are returned from Read.
type ParseError struct {
	Kind   Kind
	Chunk  int
	Column int // -1 when the problem is not tied to one column
	Offset int // absolute byte offset in the input buffer
	Fields int // field count, for KindColumnCountMismatch
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s at byte %d (chunk %d", e.Kind, e.Offset, e.Chunk)
	if e.Column >= 0 {
		msg += fmt.Sprintf(", column %d", e.Column)
	}
	msg += ")"
	if e.Kind == KindColumnCountMismatch {
		msg += fmt.Sprintf(": %d fields", e.Fields)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
