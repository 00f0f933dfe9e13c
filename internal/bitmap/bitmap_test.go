package bitmap

import "testing"

// TestNew verifies the word count for different capacities. Capacity n
// covers ids [0, n), so 64 still fits in one word and 65 needs two.
func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		n       int
		wantLen int
	}{
		{name: "zero capacity", n: 0, wantLen: 0},
		{name: "negative capacity", n: -5, wantLen: 0},
		{name: "single id", n: 1, wantLen: 1},
		{name: "one full word", n: 64, wantLen: 1},
		{name: "spills into second word", n: 65, wantLen: 2},
	}

	for _, tt := range tests {
		tt := tt // capture range variable
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bm := New(tt.n)
			if got := len(bm.data); got != tt.wantLen {
				t.Fatalf("len(data) = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

// TestAddHasRemove exercises membership across word boundaries and checks
// that out of range ids are ignored rather than panicking.
func TestAddHasRemove(t *testing.T) {
	t.Parallel()

	bm := New(130)
	for _, id := range []int{0, 63, 64, 129} {
		bm.Add(id)
	}
	bm.Add(-1)
	bm.Add(130)

	for _, id := range []int{0, 63, 64, 129} {
		if !bm.Has(id) {
			t.Errorf("Has(%d) = false, want true", id)
		}
	}
	for _, id := range []int{-1, 1, 62, 65, 128, 130, 1000} {
		if bm.Has(id) {
			t.Errorf("Has(%d) = true, want false", id)
		}
	}
	if got := bm.Count(); got != 4 {
		t.Fatalf("Count = %d, want 4", got)
	}

	bm.Remove(64)
	bm.Remove(500)
	if bm.Has(64) || bm.Count() != 3 {
		t.Fatalf("after Remove(64): Has=%v Count=%d", bm.Has(64), bm.Count())
	}
}

func TestFullAndEmpty(t *testing.T) {
	t.Parallel()

	bm := Full(70)
	if bm.Count() != 70 || bm.Cap() != 70 {
		t.Fatalf("Full(70): Count=%d Cap=%d", bm.Count(), bm.Cap())
	}
	if bm.Has(70) {
		t.Fatal("Full(70) has bit 70")
	}
	for i := 0; i < 70; i++ {
		bm.Remove(i)
	}
	if !bm.Empty() {
		t.Fatal("bitmap not empty after removing every id")
	}
	if !New(0).Empty() {
		t.Fatal("zero-capacity bitmap not empty")
	}
}
