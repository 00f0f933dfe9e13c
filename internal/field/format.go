package field

import (
	"math"
	"strconv"
)

// Format appends the text form of a non-string cell to dst, using dec as the
// decimal separator. The output re-parses to the same value under a dialect
// with the same decimal separator. NA cells append nothing.
//
// String cells cannot be formatted without their chunk anchor; Format
// appends nothing for them.
func Format(dst []byte, c Cell, t Type, dec byte) []byte {
	if c.IsNA(t) {
		return dst
	}
	switch t {
	case Bool:
		return strconv.AppendBool(dst, c.Bool())
	case Int32:
		return strconv.AppendInt(dst, int64(c.Int32()), 10)
	case Int64:
		return strconv.AppendInt(dst, c.Int64(), 10)
	case Float64:
		v := c.Float64()
		switch {
		case math.IsInf(v, 1):
			return append(dst, "Inf"...)
		case math.IsInf(v, -1):
			return append(dst, "-Inf"...)
		case math.IsNaN(v):
			return append(dst, "NaN"...)
		}
		start := len(dst)
		dst = strconv.AppendFloat(dst, v, 'g', -1, 64)
		if dec != '.' {
			for i := start; i < len(dst); i++ {
				if dst[i] == '.' {
					dst[i] = dec
				}
			}
		}
		return dst
	}
	return dst
}
