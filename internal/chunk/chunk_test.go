package chunk

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"chunkread/internal/dialect"
	"chunkread/internal/parser/csv"
)

func rows(n int) []byte {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,name%d,%d.5\n", i, i, i)
	}
	return b.Bytes()
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		span   Span
		n, min int
		want   []int
	}{
		{"even", Span{0, 100}, 4, 1, []int{0, 25, 50, 75, 100}},
		{"offset span", Span{10, 20}, 2, 1, []int{10, 15, 20}},
		{"min size wins", Span{0, 100}, 8, 40, []int{0, 50, 100}},
		{"tiny input", Span{0, 10}, 8, 64, []int{0, 10}},
		{"zero chunks", Span{0, 10}, 0, 1, []int{0, 10}},
		{"empty", Span{5, 5}, 4, 1, []int{5, 5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Split(tt.span, tt.n, tt.min)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("Split = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestResolveBoundariesLineStarts checks the basic invariants on a plain
// file: every chunk after the first starts right after a newline, the chunks
// tile the span, and only the final chunk is marked last.
func TestResolveBoundariesLineStarts(t *testing.T) {
	t.Parallel()

	buf := rows(2000)
	d := dialect.Default()
	ccs := ResolveBoundaries(buf, Span{0, len(buf)}, 7, 3, false, false, &d, Options{MinChunkSize: 1})
	if len(ccs) != 7 {
		t.Fatalf("got %d chunks, want 7", len(ccs))
	}
	for i, cc := range ccs {
		if cc.Index != i {
			t.Errorf("chunk %d has index %d", i, cc.Index)
		}
		if !cc.StartVerified {
			t.Errorf("%s not verified", cc)
		}
		if i == 0 {
			if cc.Start != 0 || cc.Boundary != Verified {
				t.Errorf("first chunk = %s", cc)
			}
		} else {
			if buf[cc.Start-1] != '\n' {
				t.Errorf("%s does not start a line", cc)
			}
			if cc.Start != ccs[i-1].End {
				t.Errorf("%s does not follow %s", cc, ccs[i-1])
			}
			if cc.Boundary != Resynchronized {
				t.Errorf("%s boundary = %s", cc, cc.Boundary)
			}
		}
		if cc.IsLast != (i == len(ccs)-1) {
			t.Errorf("%s IsLast = %v", cc, cc.IsLast)
		}
	}
	if last := ccs[len(ccs)-1]; last.End != len(buf) {
		t.Fatalf("last chunk ends at %d, want %d", last.End, len(buf))
	}
}

// TestResolveBoundariesQuotedMultilineField places a long quoted field with
// embedded newlines and separators across one of the tentative splits. The
// split must move past the end of the record, not to a line inside it.
func TestResolveBoundariesQuotedMultilineField(t *testing.T) {
	t.Parallel()

	const total = 1 << 20
	var field strings.Builder
	field.WriteString("999999,\"start")
	for i := 0; i < 50; i++ {
		field.WriteString("\n")
		if i%3 == 0 {
			field.WriteString("a,b,c,")
		}
		field.WriteString(strings.Repeat("y", 1000))
	}
	field.WriteString("\",7\n")

	var b bytes.Buffer
	i := 0
	for b.Len() < 3*total/8-field.Len()/2 {
		fmt.Fprintf(&b, "%06d,plain,%06d\n", i, i)
		i++
	}
	fieldStart := b.Len()
	b.WriteString(field.String())
	fieldEnd := b.Len()
	for b.Len() < total {
		fmt.Fprintf(&b, "%06d,plain,%06d\n", i, i)
		i++
	}
	buf := b.Bytes()

	span := Span{0, len(buf)}
	split := Split(span, 8, 1)[3]
	if split <= fieldStart || split >= fieldEnd {
		t.Fatalf("test setup: split %d outside field [%d,%d)", split, fieldStart, fieldEnd)
	}

	d := dialect.Default()
	ccs := ResolveBoundaries(buf, span, 8, 3, false, false, &d, Options{MinChunkSize: 1})
	if len(ccs) != 8 {
		t.Fatalf("got %d chunks, want 8", len(ccs))
	}
	if got := ccs[3]; got.Start != fieldEnd || got.Boundary != Resynchronized {
		t.Fatalf("chunk 3 = %s, want start %d resynchronized", got, fieldEnd)
	}
	for _, cc := range ccs {
		if cc.Start > fieldStart && cc.Start < fieldEnd {
			t.Errorf("%s starts inside the quoted field", cc)
		}
	}
}

func TestNextGoodLineStartUnresolvable(t *testing.T) {
	t.Parallel()

	// Two fields per line everywhere; three are expected.
	buf := []byte(strings.Repeat("a,b\n", 50))
	d := dialect.Default()
	c := csv.NewContext(buf, 0, len(buf), &d)
	start, b := NextGoodLineStart(c, Coordinates{Start: 10}, 3, false, false, Options{LookaheadLines: 3})
	if b != Unresolvable || start != 10 {
		t.Fatalf("got %d %s, want 10 unresolvable", start, b)
	}

	// With fill, short rows are acceptable.
	start, b = NextGoodLineStart(c, Coordinates{Start: 10}, 3, true, false, Options{LookaheadLines: 3})
	if b != Resynchronized || start != 12 {
		t.Fatalf("fill: got %d %s, want 12 resynchronized", start, b)
	}
}

func TestNextGoodLineStartEmptyLines(t *testing.T) {
	t.Parallel()

	buf := []byte("1,2\n3,4\n\n5,6\n\n7,8\n9,0\n1,1\n")
	d := dialect.Default()
	c := csv.NewContext(buf, 0, len(buf), &d)

	start, b := NextGoodLineStart(c, Coordinates{Start: 1}, 2, false, true, Options{})
	if b != Resynchronized || start != 4 {
		t.Fatalf("skipEmptyLines: got %d %s, want 4", start, b)
	}
	start, b = NextGoodLineStart(c, Coordinates{Start: 1}, 2, false, false, Options{})
	if b != Resynchronized || start != 14 {
		t.Fatalf("strict: got %d %s, want 14", start, b)
	}
}

func TestNextGoodLineStartAtEOF(t *testing.T) {
	t.Parallel()

	buf := rows(3)
	d := dialect.Default()
	c := csv.NewContext(buf, 0, len(buf), &d)
	start, b := NextGoodLineStart(c, Coordinates{Start: len(buf) - 2}, 3, false, false, Options{})
	if b != Verified || start != len(buf) {
		t.Fatalf("got %d %s, want %d verified", start, b, len(buf))
	}
}

// TestResolveBoundariesDropsCoveredSplits uses a lookahead that runs past the
// following tentative split; that split must not produce an empty or
// overlapping chunk.
func TestResolveBoundariesDropsCoveredSplits(t *testing.T) {
	t.Parallel()

	long := "1,\"" + strings.Repeat("q", 400) + "\",2\n"
	buf := []byte(long + "3,x,4\n5,y,6\n7,z,8\n9,w,0\n1,v,2\n3,u,4\n")
	d := dialect.Default()
	ccs := ResolveBoundaries(buf, Span{0, len(buf)}, 10, 3, false, false, &d, Options{MinChunkSize: 1})
	for i := 1; i < len(ccs); i++ {
		if ccs[i].Start <= ccs[i-1].Start {
			t.Fatalf("starts not increasing: %s after %s", ccs[i], ccs[i-1])
		}
		if ccs[i].Start == ccs[i].End {
			t.Fatalf("empty chunk %s", ccs[i])
		}
	}
	if ccs[len(ccs)-1].End != len(buf) || !ccs[len(ccs)-1].IsLast {
		t.Fatalf("last chunk = %s", ccs[len(ccs)-1])
	}
}

// quotedRecordLines builds one record whose quoted field holds lines that
// look like complete three-field records, followed by plain records. It
// returns the buffer and the offset where the plain records begin.
func quotedRecordLines(inner, after int) ([]byte, int) {
	var b bytes.Buffer
	b.WriteString("1,\"")
	for i := 0; i < inner; i++ {
		b.WriteString("a,b,c\n")
	}
	b.WriteString("end\",3\n")
	end := b.Len()
	for i := 0; i < after; i++ {
		fmt.Fprintf(&b, "%d,x,%d.5\n", i, i)
	}
	return b.Bytes(), end
}

// TestResolveBoundariesRecordLikeQuotedLines splits inside a quoted field
// whose lines parse as records on their own. The closing quote reveals the
// wrong parity, so no chunk may start inside the field.
func TestResolveBoundariesRecordLikeQuotedLines(t *testing.T) {
	t.Parallel()

	buf, end := quotedRecordLines(20, 20)
	d := dialect.Default()
	ccs := ResolveBoundaries(buf, Span{0, len(buf)}, 4, 3, false, false, &d, Options{MinChunkSize: 1})
	if len(ccs) < 2 {
		t.Fatalf("got %d chunks", len(ccs))
	}
	for _, cc := range ccs[1:] {
		if cc.Start < end {
			t.Errorf("%s starts inside the quoted field ending at %d", cc, end)
		}
		if buf[cc.Start-1] != '\n' {
			t.Errorf("%s does not start a line", cc)
		}
	}
	if ccs[1].Start != end || ccs[1].Boundary != Resynchronized {
		t.Fatalf("chunk 1 = %s, want start %d resynchronized", ccs[1], end)
	}
}

func TestNextGoodLineStartQuoteParity(t *testing.T) {
	t.Parallel()

	buf, end := quotedRecordLines(20, 20)
	tests := []struct {
		name  string
		rule  dialect.QuoteRule
		want  int
		bound Boundary
	}{
		// The closing quote is 20 records away, past ConsistentRows.
		{"doubled", dialect.QuoteDoubled, end, Resynchronized},
		{"escaped", dialect.QuoteEscaped, end, Resynchronized},
		// Without quoting every line is its own record.
		{"none", dialect.QuoteNone, 9, Resynchronized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := dialect.Default()
			d.QuoteRule = tt.rule
			c := csv.NewContext(buf, 0, len(buf), &d)
			start, b := NextGoodLineStart(c, Coordinates{Start: 4}, 3, false, false, Options{})
			if start != tt.want || b != tt.bound {
				t.Fatalf("got %d %s, want %d %s", start, b, tt.want, tt.bound)
			}
		})
	}

	// A lookahead shorter than the quoted field cannot see the closing
	// quote; the candidate is accepted and left to the sequencing pass.
	d := dialect.Default()
	c := csv.NewContext(buf, 0, len(buf), &d)
	start, b := NextGoodLineStart(c, Coordinates{Start: 4}, 3, false, false, Options{LookaheadLines: 5})
	if b != Resynchronized || start != 9 {
		t.Fatalf("short lookahead: got %d %s, want 9 resynchronized", start, b)
	}
}
