package csv

import (
	"errors"
	"math"
	"strconv"

	"chunkread/internal/field"
)

// scanDigits returns the end of a run of ASCII digits starting at i.
func scanDigits(buf []byte, i, eof int) int {
	for i < eof && buf[i] >= '0' && buf[i] <= '9' {
		i++
	}
	return i
}

// scanInt reads an optionally signed decimal integer at c.Ch. It returns the
// magnitude, the sign, the end offset, and false on no digits or overflow.
func (c *Context) scanInt() (mag uint64, neg bool, end int, ok bool) {
	buf, i := c.Buf, c.Ch
	if i < c.EOF && (buf[i] == '-' || buf[i] == '+') {
		neg = buf[i] == '-'
		i++
	}
	start := i
	for i < c.EOF {
		d := buf[i] - '0'
		if d > 9 {
			break
		}
		if mag > (math.MaxUint64-uint64(d))/10 {
			return 0, false, 0, false
		}
		mag = mag*10 + uint64(d)
		i++
	}
	if i == start {
		return 0, false, 0, false
	}
	return mag, neg, i, true
}

// ParseInt32 reads a 32-bit integer. math.MinInt32 is reserved for NA and
// is rejected like any other out-of-range value.
func ParseInt32(c *Context) bool {
	mag, neg, end, ok := c.scanInt()
	if !ok || mag > math.MaxInt32 {
		return false
	}
	v := int32(mag)
	if neg {
		v = -v
	}
	c.Target = field.Int32Cell(v)
	c.Ch = end
	return true
}

// ParseInt64 reads a 64-bit integer. math.MinInt64 is reserved for NA.
func ParseInt64(c *Context) bool {
	mag, neg, end, ok := c.scanInt()
	if !ok || mag > math.MaxInt64 {
		return false
	}
	v := int64(mag)
	if neg {
		v = -v
	}
	c.Target = field.Int64Cell(v)
	c.Ch = end
	return true
}

// specialFloats are the accepted spellings of non-finite values.
var specialFloats = []struct {
	text string
	val  float64
}{
	{"Infinity", math.Inf(1)},
	{"infinity", math.Inf(1)},
	{"INFINITY", math.Inf(1)},
	{"Inf", math.Inf(1)},
	{"inf", math.Inf(1)},
	{"INF", math.Inf(1)},
	{"NaN", math.NaN()},
	{"nan", math.NaN()},
	{"NAN", math.NaN()},
}

// ParseFloat64 reads a floating point literal using the dialect's decimal
// separator:
//
//	[+-] (digits [dec digits] | dec digits) [(e|E) [+-] digits]
//
// or one of the fixed spellings of infinity and NaN.
func ParseFloat64(c *Context) bool {
	buf, eof := c.Buf, c.EOF
	i := c.Ch
	neg := false
	if i < eof && (buf[i] == '-' || buf[i] == '+') {
		neg = buf[i] == '-'
		i++
	}

	intEnd := scanDigits(buf, i, eof)
	digits := intEnd - i
	end := intEnd
	if end < eof && buf[end] == c.D.Dec {
		fracEnd := scanDigits(buf, end+1, eof)
		digits += fracEnd - end - 1
		end = fracEnd
	}
	if digits == 0 {
		for _, sf := range specialFloats {
			if i+len(sf.text) <= eof && string(buf[i:i+len(sf.text)]) == sf.text {
				v := sf.val
				if neg {
					v = -v
				}
				c.Target = field.Float64Cell(v)
				c.Ch = i + len(sf.text)
				return true
			}
		}
		return false
	}
	if end < eof && (buf[end] == 'e' || buf[end] == 'E') {
		j := end + 1
		if j < eof && (buf[j] == '-' || buf[j] == '+') {
			j++
		}
		if expEnd := scanDigits(buf, j, eof); expEnd > j {
			end = expEnd
		}
	}

	lit := buf[c.Ch:end]
	var tmp [64]byte
	if c.D.Dec != '.' {
		if len(lit) <= len(tmp) {
			n := copy(tmp[:], lit)
			for k := 0; k < n; k++ {
				if tmp[k] == c.D.Dec {
					tmp[k] = '.'
				}
			}
			lit = tmp[:n]
		} else {
			cp := make([]byte, len(lit))
			for k, b := range lit {
				if b == c.D.Dec {
					b = '.'
				}
				cp[k] = b
			}
			lit = cp
		}
	}
	v, err := strconv.ParseFloat(string(lit), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return false
	}
	c.Target = field.Float64Cell(v)
	c.Ch = end
	return true
}
