package valuesource

import "math/bits"

// BitSet is a growable set of small non-negative integers. The compiler uses
// it for the groups that touch a variable, indexed by group id.
type BitSet struct {
	words []uint64
}

// NewBitSet returns a set sized for values up to n-1. It grows on demand.
func NewBitSet(n int) *BitSet {
	return &BitSet{words: make([]uint64, (n+63)/64)}
}

// Set adds v.
func (b *BitSet) Set(v int) {
	w := v / 64
	if w >= len(b.words) {
		b.grow(w + 1)
	}
	b.words[w] |= 1 << (v % 64)
}

// Clear removes v.
func (b *BitSet) Clear(v int) {
	if w := v / 64; w < len(b.words) {
		b.words[w] &^= 1 << (v % 64)
	}
}

// Has reports whether v is in the set.
func (b *BitSet) Has(v int) bool {
	w := v / 64
	if b == nil || w >= len(b.words) {
		return false
	}
	return b.words[w]&(1<<(v%64)) != 0
}

// Union adds every element of other.
func (b *BitSet) Union(other *BitSet) {
	if len(other.words) > len(b.words) {
		b.grow(len(other.words))
	}
	for i, w := range other.words {
		b.words[i] |= w
	}
}

// Count returns the number of elements.
func (b *BitSet) Count() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// First returns the smallest element, or -1 for an empty set.
func (b *BitSet) First() int {
	if b == nil {
		return -1
	}
	for i, w := range b.words {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// Slice returns the elements in ascending order.
func (b *BitSet) Slice() []int {
	var out []int
	if b == nil {
		return out
	}
	for i, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, i*64+bit)
			w &= w - 1
		}
	}
	return out
}

func (b *BitSet) grow(n int) {
	words := make([]uint64, n)
	copy(words, b.words)
	b.words = words
}
