// Package export writes a parsed table as a self-describing CBOR document
// and reads it back.
package export

import (
	"fmt"
	"io"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"chunkread/internal/column"
	"chunkread/internal/field"
)

// Core deterministic encoding: the same table always yields the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("export: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("export: CBOR decoder initialization failed: " + err.Error())
	}
}

// Dump is the exported document.
type Dump struct {
	Rows    int          `cbor:"rows"`
	Columns []ColumnDump `cbor:"columns"`
}

// ColumnDump holds one column. Values has one entry per row: bool, int32,
// int64, float64 or string by Type, and nil for NA.
type ColumnDump struct {
	Name   string `cbor:"name"`
	Type   string `cbor:"type"`
	Values []any  `cbor:"values"`
}

// FromTable copies t into a Dump.
func FromTable(t *column.Table) *Dump {
	d := &Dump{Rows: t.Rows, Columns: make([]ColumnDump, len(t.Columns))}
	for j, c := range t.Columns {
		vals := make([]any, c.Len())
		for i := range vals {
			vals[i] = c.Value(i)
		}
		d.Columns[j] = ColumnDump{Name: c.Name, Type: c.Type.String(), Values: vals}
	}
	return d
}

// WriteCBOR encodes t to w.
func WriteCBOR(w io.Writer, t *column.Table) error {
	if err := encMode.NewEncoder(w).Encode(FromTable(t)); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// ReadCBOR decodes a document written by WriteCBOR. Values are converted
// back to the Go type of their column, so integers come back as int32 or
// int64 rather than CBOR's unsigned/negative split.
func ReadCBOR(r io.Reader) (*Dump, error) {
	var d Dump
	if err := decMode.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("export: decode: %w", err)
	}
	for j := range d.Columns {
		col := &d.Columns[j]
		typ, err := field.ParseType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("export: column %q: %w", col.Name, err)
		}
		if len(col.Values) != d.Rows {
			return nil, fmt.Errorf("export: column %q has %d values for %d rows", col.Name, len(col.Values), d.Rows)
		}
		for i, v := range col.Values {
			nv, err := restore(v, typ)
			if err != nil {
				return nil, fmt.Errorf("export: column %q row %d: %w", col.Name, i, err)
			}
			col.Values[i] = nv
		}
	}
	return &d, nil
}

func restore(v any, t field.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case field.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case field.Int32, field.Int64:
		var n int64
		switch x := v.(type) {
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("integer %d out of range", x)
			}
			n = int64(x)
		case int64:
			n = x
		default:
			return nil, fmt.Errorf("%T is not an integer", v)
		}
		if t == field.Int64 {
			return n, nil
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("integer %d out of int32 range", n)
		}
		return int32(n), nil
	case field.Float64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
	case field.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%T does not fit %s", v, t)
}
