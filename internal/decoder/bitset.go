package decoder

import (
	"strconv"
	"strings"
)

// bitset is a fixed-width, word-packed set of source-block indices,
// mirroring spec.md's design note that the peeling decoder's bipartite
// adjacency should be stored as plain indexed arrays rather than pointer
// graphs. XOR-ing two bitsets (used when Gaussian elimination adds one row
// into another) operates a whole 64-bit word at a time, which is
// what lets Gaussian elimination over these rows meet the O(k^3/64)
// bitwise-operation bound spec.md §5 calls out.
type bitset struct {
	words []uint64
	n     int
}

func newBitset(n int) bitset {
	return bitset{words: make([]uint64, (n+63)/64), n: n}
}

func bitsetFromIndices(n int, indices []int) bitset {
	b := newBitset(n)
	for _, i := range indices {
		b.set(i)
	}
	return b
}

func (b *bitset) set(i int)   { b.words[i/64] |= 1 << uint(i%64) }
func (b *bitset) clear(i int) { b.words[i/64] &^= 1 << uint(i%64) }
func (b bitset) has(i int) bool {
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

func (b bitset) popcount() int {
	c := 0
	for _, w := range b.words {
		c += popcount64(w)
	}
	return c
}

func popcount64(w uint64) int {
	c := 0
	for w != 0 {
		w &= w - 1
		c++
	}
	return c
}

// singleIndex returns the sole set bit, assuming popcount() == 1.
func (b bitset) singleIndex() int {
	for wi, w := range b.words {
		if w != 0 {
			for bi := 0; bi < 64; bi++ {
				if w&(1<<uint(bi)) != 0 {
					return wi*64 + bi
				}
			}
		}
	}
	return -1
}

// indices returns the set bits in ascending order.
func (b bitset) indices() []int {
	var out []int
	for wi, w := range b.words {
		for bi := 0; bi < 64; bi++ {
			if w&(1<<uint(bi)) != 0 {
				out = append(out, wi*64+bi)
			}
		}
	}
	return out
}

func (b *bitset) xorInPlace(o bitset) {
	for i := range b.words {
		b.words[i] ^= o.words[i]
	}
}

func (b bitset) isZero() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

func (b bitset) clone() bitset {
	words := make([]uint64, len(b.words))
	copy(words, b.words)
	return bitset{words: words, n: b.n}
}

// key returns a canonical string usable as a map key for duplicate
// detection; two bitsets with identical set bits always produce the same
// key.
func (b bitset) key() string {
	var sb strings.Builder
	for _, i := range b.indices() {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(',')
	}
	return sb.String()
}
