// Package field defines the column value types understood by the parser and
// Cell, the fixed-width slot that stores one parsed value.
//
// A Cell is 8 bytes regardless of type. Strings are not copied: a string cell
// stores an offset relative to the chunk's anchor plus a length, and the
// bytes stay in the caller's input buffer.
package field

import (
	"fmt"
	"math"
	"strings"
)

// Type is a column value type. Types are ordered from narrowest to widest;
// Widen moves one step along that order.
type Type uint8

const (
	Bool Type = iota + 1
	Int32
	Int64
	Float64
	String
)

var typeNames = map[Type]string{
	Bool:    "bool",
	Int32:   "int32",
	Int64:   "int64",
	Float64: "float64",
	String:  "string",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool { return t >= Bool && t <= String }

// Widen returns the next wider type. String is terminal: Widen returns
// (String, false).
func (t Type) Widen() (Type, bool) {
	if t >= String || t < Bool {
		return String, false
	}
	return t + 1, true
}

// ParseType maps a config spelling to a Type. Common aliases are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return Bool, nil
	case "int32", "int":
		return Int32, nil
	case "int64", "bigint", "long":
		return Int64, nil
	case "float64", "double", "float", "real":
		return Float64, nil
	case "string", "str", "text":
		return String, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Cell is one parsed value. Interpretation depends on the column Type.
type Cell uint64

// NA sentinels. The float pattern is a signalling NaN payload that
// strconv never produces, so parsed NaN values stay distinguishable from NA.
const (
	naBool    int8   = math.MinInt8
	naInt32   int32  = math.MinInt32
	naInt64   int64  = math.MinInt64
	naFloat64 uint64 = 0x7FF00000000007A2
	naStrHigh uint32 = 0xFFFFFFFF

	strEscapedBit uint32 = 1 << 31

	// MaxStringLen is the longest field a string cell can describe.
	MaxStringLen = 1<<31 - 2
)

// Bit patterns of the signed sentinels, zero-extended into a Cell.
const (
	naBoolCell  Cell = 1 << 7
	naInt32Cell Cell = 1 << 31
	naInt64Cell Cell = 1 << 63
)

// NA returns the missing-value cell for t.
func NA(t Type) Cell {
	switch t {
	case Bool:
		return naBoolCell
	case Int32:
		return naInt32Cell
	case Int64:
		return naInt64Cell
	case Float64:
		return Cell(naFloat64)
	default:
		return Cell(uint64(naStrHigh) << 32)
	}
}

// IsNA reports whether c holds the missing-value sentinel for t.
func (c Cell) IsNA(t Type) bool {
	switch t {
	case Bool:
		return int8(uint8(c)) == naBool
	case Int32:
		return int32(uint32(c)) == naInt32
	case Int64:
		return int64(c) == naInt64
	case Float64:
		return uint64(c) == naFloat64
	default:
		return uint32(c>>32) == naStrHigh
	}
}

func BoolCell(v bool) Cell {
	if v {
		return 1
	}
	return 0
}

func Int32Cell(v int32) Cell     { return Cell(uint32(v)) }
func Int64Cell(v int64) Cell     { return Cell(uint64(v)) }
func Float64Cell(v float64) Cell { return Cell(math.Float64bits(v)) }

// StrCell describes length bytes starting offset bytes after the anchor.
// escaped marks content that still holds quote escapes.
func StrCell(offset uint32, length int, escaped bool) Cell {
	hi := uint32(length)
	if escaped {
		hi |= strEscapedBit
	}
	return Cell(uint64(hi)<<32 | uint64(offset))
}

func (c Cell) Bool() bool       { return int8(uint8(c)) == 1 }
func (c Cell) Int32() int32     { return int32(uint32(c)) }
func (c Cell) Int64() int64     { return int64(c) }
func (c Cell) Float64() float64 { return math.Float64frombits(uint64(c)) }

// StrRef is the decoded form of a string cell.
type StrRef struct {
	Offset  uint32
	Len     int
	Escaped bool
}

// Str decodes a string cell. The result is meaningless for NA cells.
func (c Cell) Str() StrRef {
	hi := uint32(c >> 32)
	return StrRef{
		Offset:  uint32(c),
		Len:     int(hi &^ strEscapedBit),
		Escaped: hi&strEscapedBit != 0,
	}
}
