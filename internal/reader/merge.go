package reader

import (
	"fmt"

	"chunkread/internal/column"
	"chunkread/internal/dialect"
	"chunkread/internal/field"
)

// Merge concatenates chunk outputs in order into a table. Every output must
// be Complete, parsed with exactly types, and start where the previous one
// ended. names may be nil.
func Merge(buf []byte, outs []*ChunkOutput, types []field.Type, names []string, d *dialect.Dialect) (*column.Table, error) {
	for i, o := range outs {
		if o == nil {
			return nil, fmt.Errorf("merge: chunk %d was never parsed", i)
		}
		if o.Outcome.State != Complete {
			return nil, fmt.Errorf("merge: chunk %d is %s", i, o.Outcome.State)
		}
		if len(o.Types) != len(types) {
			return nil, fmt.Errorf("merge: chunk %d has %d columns, want %d", i, len(o.Types), len(types))
		}
		for j, t := range o.Types {
			if t != types[j] {
				return nil, fmt.Errorf("merge: chunk %d parsed column %d as %s, want %s", i, j, t, types[j])
			}
		}
		if i > 0 && o.Coords.Start != outs[i-1].ActualEnd {
			return nil, fmt.Errorf("merge: chunk %d starts at byte %d, previous chunk ended at %d",
				i, o.Coords.Start, outs[i-1].ActualEnd)
		}
	}

	t := &column.Table{Columns: make([]*column.Column, len(types))}
	for j, typ := range types {
		name := fmt.Sprintf("col%d", j+1)
		if j < len(names) && names[j] != "" {
			name = names[j]
		}
		t.Columns[j] = column.New(name, typ, buf, d)
	}
	for _, o := range outs {
		for j, col := range t.Columns {
			col.Append(o.Cells[j], o.Coords.Start)
		}
		t.Rows += o.Rows
	}
	return t, nil
}
