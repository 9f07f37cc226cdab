// Package fountain implements the rateless fountain encoder: systematic
// symbols followed by an unbounded stream of redundant, degree-sampled
// symbols, each XORing a uniformly-sampled subset of source blocks.
//
// Grounded on google-gofountain's luby.go (EncodeLTBlocks, lubyCodec) and
// util.go (sampleUniform) from the example pack, reworked to Tightbeam's
// systematic-first emission order and deterministic (seed, emissionIndex)
// sampling via internal/degree instead of a shared, reseeded *rand.Rand.
package fountain

import (
	"math/rand"
	"sort"

	"github.com/rootnegativeone/tightbeam/internal/block"
	"github.com/rootnegativeone/tightbeam/internal/degree"
)

// Symbol is one fountain-coded output symbol: the XOR of the source blocks
// named by Indices. A degree-1 symbol (len(Indices) == 1) emitted during the
// systematic phase is a verbatim copy of a single source block.
type Symbol struct {
	// EmissionIndex is this symbol's position in the deterministic emission
	// sequence (0-based), used only to reproduce the draw; it is NOT the
	// wire "sequence" (that belongs to the frame/sync layer).
	EmissionIndex int64
	Indices       []int
	Payload       []byte
}

// Degree returns the number of source blocks this symbol XORs together.
func (s Symbol) Degree() int { return len(s.Indices) }

// Systematic reports whether this is a degree-1, verbatim source-block
// symbol (informational; the wire encoding does not distinguish it from any
// other degree-1 symbol).
func (s Symbol) Systematic() bool { return len(s.Indices) == 1 }

// Encoder emits the deterministic systematic-then-redundant symbol stream
// for a fixed partition and seed.
type Encoder struct {
	parts   block.Partitioned
	seed    int64
	sampler *degree.Sampler
	next    int64 // next emission index
	prev    []int // indices of the previously emitted symbol, for diversification
}

// NewEncoder creates an Encoder over an already-partitioned payload.
func NewEncoder(parts block.Partitioned, seed int64, params degree.Params) *Encoder {
	return &Encoder{
		parts:   parts,
		seed:    seed,
		sampler: degree.NewSampler(seed, parts.K(), params),
	}
}

// K returns the number of source blocks.
func (e *Encoder) K() int { return e.parts.K() }

// Systematic returns the k systematic symbols in order: symbol i has
// Indices = {i} and Payload = source block i. Calling this sets the next
// redundant emission index to k, so a following Next continues the stream
// right after the systematic symbols.
func (e *Encoder) Systematic() []Symbol {
	k := e.parts.K()
	out := make([]Symbol, k)
	for i := 0; i < k; i++ {
		payload := make([]byte, e.parts.BlockSize)
		copy(payload, e.parts.Blocks[i])
		out[i] = Symbol{EmissionIndex: int64(i), Indices: []int{i}, Payload: payload}
	}
	e.next = int64(k)
	return out
}

// Next emits the next redundant symbol in the deterministic stream. The
// emission index continues from wherever Systematic() left off (or from 0
// if Systematic() was never called — useful for resuming from a saved
// redundant-count).
func (e *Encoder) Next() Symbol {
	k := e.parts.K()
	idx := e.next
	e.next++

	d := e.sampler.Draw(idx)
	indices := sampleDistinct(mixSeed(e.seed, idx), d, k)

	// Rejection-resample once against the immediately previous symbol's
	// index set: a cheap diversification, not a correctness requirement
	// (spec.md §4.3).
	if sameIndexSet(indices, e.prev) {
		indices = sampleDistinct(mixSeed(e.seed, idx)^1, d, k)
	}
	e.prev = indices

	payload := make([]byte, e.parts.BlockSize)
	for _, i := range indices {
		block.XOR(payload, e.parts.Blocks[i])
	}

	return Symbol{EmissionIndex: idx, Indices: indices, Payload: payload}
}

// NextN emits the next n redundant symbols.
func (e *Encoder) NextN(n int) []Symbol {
	out := make([]Symbol, n)
	for i := range out {
		out[i] = e.Next()
	}
	return out
}

func mixSeed(seed, idx int64) int64 {
	z := uint64(seed) + uint64(idx)*0x9E3779B97F4A7C15 + 0x1000
	z = (z ^ (z >> 29)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 32)) * 0x94D049BB133111EB
	z ^= z >> 29
	v := int64(z & 0x7FFFFFFFFFFFFFFF)
	if v == 0 {
		v = 1
	}
	return v
}

// sampleDistinct picks num distinct indices from [0, max) uniformly,
// returned in ascending order. If num >= max, returns every index.
// Grounded on google-gofountain's util.go sampleUniform.
func sampleDistinct(seed int64, num, max int) []int {
	if num >= max {
		picks := make([]int, max)
		for i := 0; i < max; i++ {
			picks[i] = i
		}
		return picks
	}
	if num < 1 {
		num = 1
	}

	r := rand.New(rand.NewSource(seed))
	seen := make(map[int]bool, num)
	picks := make([]int, 0, num)
	for len(picks) < num {
		p := r.Intn(max)
		if seen[p] {
			continue
		}
		seen[p] = true
		picks = append(picks, p)
	}
	sort.Ints(picks)
	return picks
}

func sameIndexSet(a, b []int) bool {
	if len(a) != len(b) || a == nil || b == nil {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
