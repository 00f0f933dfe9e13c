package csv

import (
	"testing"

	"chunkread/internal/dialect"
)

func TestSkipEOL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		cr   bool
		ok   bool
		next int
	}{
		{"\nx", false, true, 1},
		{"\r\nx", false, true, 2},
		{"\r\r\nx", false, true, 3},
		{"\n\rx", false, true, 2},
		{"\n\r\nx", false, true, 1},
		{"\rx", false, false, 0},
		{"\rx", true, true, 1},
		{"x", false, false, 0},
	}
	for _, tt := range tests {
		d := dialect.Default()
		d.CRIsNewline = tt.cr
		c := newCtx(tt.in, d)
		if ok := c.SkipEOL(); ok != tt.ok || c.Ch != tt.next {
			t.Errorf("SkipEOL(%q, cr=%v) = %v at %d; want %v at %d", tt.in, tt.cr, ok, c.Ch, tt.ok, tt.next)
		}
	}
}

func TestCountFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		strict bool
		want   int
		next   int
	}{
		{"simple", "a,b,c\nd", false, 3, 6},
		{"crlf", "a,b\r\nd", false, 2, 5},
		{"last line", "a,b", false, 2, 3},
		{"empty line", "\na", false, 0, 1},
		{"eof", "", false, 0, 0},
		{"quoted newline", "\"x\ny\",2\nz", false, 2, 8},
		{"doubled quotes", `"a""b",c` + "\n", false, 2, 9},
		{"unterminated", "\"abc\n1,2\n", false, -1, 0},
		{"inside quotes lenient", "y\",2\n", false, 2, 5},
		{"inside quotes strict", "y\",2\n", true, -1, 0},
		{"garbage after quote", "\"a\"b,c\n", false, -1, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newCtx(tt.in, dialect.Default())
			var got int
			if tt.strict {
				got = c.CountFieldsStrict()
			} else {
				got = c.CountFields()
			}
			if got != tt.want || c.Ch != tt.next {
				t.Fatalf("count = %d at %d; want %d at %d", got, c.Ch, tt.want, tt.next)
			}
		})
	}
}

// TestSpaceSeparator checks that runs of spaces form one separator and that
// trailing spaces do not open an extra field.
func TestSpaceSeparator(t *testing.T) {
	t.Parallel()

	d := dialect.Default()
	d.Sep = ' '
	c := newCtx("  a   b  \nc d\n", d)
	if n := c.CountFields(); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if c.Ch != 10 {
		t.Fatalf("Ch = %d, want 10", c.Ch)
	}
	if n := c.CountFields(); n != 2 {
		t.Fatalf("second count = %d, want 2", n)
	}
}

func TestEndNAStringPrefersLongest(t *testing.T) {
	t.Parallel()

	d := dialect.Default()
	d.NAStrings = []string{"N", "NA", "NAN"}
	c := newCtx("NAN,", d)
	if end := c.EndNAString(0); end != 3 {
		t.Fatalf("EndNAString = %d, want 3", end)
	}
	c = newCtx("x", d)
	if end := c.EndNAString(0); end != -1 {
		t.Fatalf("EndNAString = %d, want -1", end)
	}
}

func TestSkipLine(t *testing.T) {
	t.Parallel()

	c := newCtx("\"a\"b,c\nnext\n", dialect.Default())
	c.SkipLine()
	if c.Ch != 7 {
		t.Fatalf("Ch = %d, want 7", c.Ch)
	}
}
