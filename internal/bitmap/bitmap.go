// Package bitmap provides a compact set of small non-negative integers. The
// reader uses it to track which chunk indexes still need a parse attempt.
package bitmap

import "math/bits"

// Bitmap is a bitset backed by a slice of uint64 words. Bit i stands for
// chunk (or any other) index i.
type Bitmap struct {
	data []uint64
	n    int
}

// New returns an empty bitmap for ids in [0, n).
func New(n int) *Bitmap {
	if n <= 0 {
		return &Bitmap{}
	}
	return &Bitmap{
		data: make([]uint64, (n+63)/64),
		n:    n,
	}
}

// Full returns a bitmap for ids in [0, n) with every bit set.
func Full(n int) *Bitmap {
	b := New(n)
	for i := 0; i < n; i++ {
		b.Add(i)
	}
	return b
}

// Cap is the exclusive upper bound passed to New.
func (b *Bitmap) Cap() int { return b.n }

// Add sets bit id. Out of range ids are ignored.
func (b *Bitmap) Add(id int) {
	if id < 0 || id >= b.n {
		return
	}
	b.data[id/64] |= 1 << uint(id%64)
}

// Remove clears bit id. Out of range ids are ignored.
func (b *Bitmap) Remove(id int) {
	if id < 0 || id >= b.n {
		return
	}
	b.data[id/64] &^= 1 << uint(id%64)
}

// Has reports whether bit id is set. Out of range ids report false.
func (b *Bitmap) Has(id int) bool {
	if id < 0 || id >= b.n {
		return false
	}
	return b.data[id/64]&(1<<uint(id%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}

// Empty reports whether no bit is set.
func (b *Bitmap) Empty() bool {
	for _, w := range b.data {
		if w != 0 {
			return false
		}
	}
	return true
}
