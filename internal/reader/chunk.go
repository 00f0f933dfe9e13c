package reader

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"chunkread/internal/chunk"
	"chunkread/internal/dialect"
	"chunkread/internal/field"
	"chunkread/internal/parser/csv"
)

// checkEvery is how many records a worker parses between cancellation checks.
const checkEvery = 1024

// State is the outcome of one chunk parse attempt.
type State uint8

const (
	// Complete: every record starting before End was parsed.
	Complete State = iota
	// IncompleteTypeMismatch: parsing stopped at a value that does not fit
	// its column type. Outcome.Column and Outcome.Offset locate it.
	IncompleteTypeMismatch
	// BoundaryUnresolvable: the chunk start was not verified; nothing was
	// parsed.
	BoundaryUnresolvable
)

func (s State) String() string {
	switch s {
	case Complete:
		return "complete"
	case IncompleteTypeMismatch:
		return "type_mismatch"
	case BoundaryUnresolvable:
		return "unresolvable"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Outcome is the per-chunk result tag.
type Outcome struct {
	State  State
	Column int
	Offset int
}

// ChunkOutput is what one worker hands back for one chunk attempt. Cells
// and Issues are private to the attempt until the orchestrator accepts it.
type ChunkOutput struct {
	Coords  chunk.Coordinates
	Outcome Outcome

	// ActualEnd is the start of the first record at or after Coords.End, or
	// where parsing stopped for an incomplete outcome.
	ActualEnd int

	// Types are the column types this attempt parsed with.
	Types []field.Type

	// Cells holds one slice per column, one cell per accepted record.
	Cells [][]field.Cell
	Rows  int

	Issues []*ParseError
}

// ParseChunk parses the records that start in [cc.Start, cc.End) into typed
// cells, one column per entry of types. A record that starts before End is
// read to its end even past End. String cells are relative to cc.Start.
//
// Recoverable problems are reported through the Outcome and Issues; the
// returned error is non-nil only for fatal problems (KindEncoding) or a
// cancelled ctx.
func ParseChunk(ctx context.Context, buf []byte, cc chunk.Coordinates, d *dialect.Dialect, types []field.Type, opts Options) (*ChunkOutput, error) {
	ncols := len(types)
	out := &ChunkOutput{
		Coords:    cc,
		ActualEnd: cc.Start,
		Types:     append([]field.Type(nil), types...),
		Cells:     make([][]field.Cell, ncols),
	}
	if !cc.StartVerified {
		out.Outcome = Outcome{State: BoundaryUnresolvable, Column: -1, Offset: cc.Start}
		return out, nil
	}
	// Rough row estimate: at least four bytes per field.
	if est := (cc.End - cc.Start) / (4*ncols + 4); est > 0 {
		for j := range out.Cells {
			out.Cells[j] = make([]field.Cell, 0, est)
		}
	}

	c := csv.NewContext(buf, cc.Start, len(buf), d)
	row := make([]field.Cell, ncols)
	issue := func(k Kind, col, off, nf int) {
		out.Issues = append(out.Issues, &ParseError{Kind: k, Chunk: cc.Index, Column: col, Offset: off, Fields: nf})
	}

	for records := 0; c.Ch < cc.End; records++ {
		if records%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rowStart := c.Ch
		c.SkipWhitespaceAtLineStart()
		if c.Ch >= c.EOF {
			break
		}

		if c.AtEOL() && (ncols != 1 || opts.SkipEmptyLines) {
			c.SkipEOL()
			switch {
			case opts.SkipEmptyLines:
			case opts.Fill:
				for j := range row {
					row[j] = field.NA(types[j])
				}
				out.appendRow(row)
			default:
				issue(KindColumnCountMismatch, -1, rowStart, 0)
			}
			continue
		}

		nf := 0
		for {
			if nf < ncols {
				t := types[nf]
				fieldStart := c.Ch
				switch csv.ParseField(c, t) {
				case csv.StatusMismatch:
					out.Outcome = Outcome{State: IncompleteTypeMismatch, Column: nf, Offset: c.Ch}
					out.ActualEnd = rowStart
					return out, nil
				case csv.StatusMalformedQuote:
					if !csv.ParseRawField(c) {
						return nil, &ParseError{
							Kind: KindMalformedQuote, Chunk: cc.Index, Column: nf, Offset: fieldStart,
							Err: errors.New("field does not fit a string cell"),
						}
					}
					issue(KindMalformedQuote, nf, fieldStart, 0)
				}
				if t == field.String && !opts.SkipUTF8Check && !c.Target.IsNA(t) {
					ref := c.Target.Str()
					s := cc.Start + int(ref.Offset)
					if !utf8.Valid(buf[s : s+ref.Len]) {
						return nil, &ParseError{Kind: KindEncoding, Chunk: cc.Index, Column: nf, Offset: s, Err: ErrEncoding}
					}
				}
				row[nf] = c.Target
			} else if csv.ParseField(c, field.String) == csv.StatusMalformedQuote {
				// Surplus field: only its extent matters.
				csv.ParseRawField(c)
			}
			nf++

			if c.Ch < c.EOF && c.Buf[c.Ch] == d.Sep {
				if c.SkipSep() {
					continue
				}
			}
			c.SkipEOL()
			break
		}

		switch {
		case nf == ncols:
			out.appendRow(row)
		case nf < ncols && opts.Fill:
			for j := nf; j < ncols; j++ {
				row[j] = field.NA(types[j])
			}
			out.appendRow(row)
		default:
			issue(KindColumnCountMismatch, -1, rowStart, nf)
		}
	}
	out.ActualEnd = c.Ch
	out.Outcome = Outcome{State: Complete, Column: -1, Offset: c.Ch}
	return out, nil
}

func (o *ChunkOutput) appendRow(row []field.Cell) {
	for j, v := range row {
		o.Cells[j] = append(o.Cells[j], v)
	}
	o.Rows++
}
