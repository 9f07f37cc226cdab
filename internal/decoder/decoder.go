// Package decoder implements the receiver-side fountain decoder: symbol
// accumulation, degree-1 peeling (belief propagation), a GF(2) Gaussian
// elimination fallback, completion detection, and integrity verification
// (spec.md §4.6).
//
// Grounded on google-gofountain's luby.go/online.go sparse-matrix decoder
// shape from the example pack (matrix.addEquation / matrix.reduce /
// matrix.determined), adapted to spec.md's explicit two-phase design: a
// linear-time peeling fast path plus an explicit Gaussian-elimination
// fallback triggered once buffered symbols reach a threshold, rather than
// the teacher's single unified sparse-matrix reduction.
package decoder

import (
	"fmt"

	"github.com/rootnegativeone/tightbeam/internal/block"
	"github.com/rootnegativeone/tightbeam/internal/frame"
)

// Rejection classifies why an incoming symbol added nothing (or was
// invalid), per spec.md §7. It is informational, not an error: a rejected
// symbol never aborts a session.
type Rejection int

const (
	RejectionNone Rejection = iota
	RejectionRedundant
	RejectionCorrupt
	RejectionDuplicate
	// RejectionMalformed, RejectionIndexOutOfRange, and RejectionNotLocked
	// classify wire-level rejections that never reach AddSymbol (they are
	// raised by internal/session before a symbol is handed to the
	// decoder), but share this enum so metrics and Status can report every
	// spec.md §7 error kind through a single field.
	RejectionMalformed
	RejectionIndexOutOfRange
	RejectionNotLocked
)

func (r Rejection) String() string {
	switch r {
	case RejectionNone:
		return ""
	case RejectionRedundant:
		return "redundant"
	case RejectionCorrupt:
		return "corrupt"
	case RejectionDuplicate:
		return "duplicate"
	case RejectionMalformed:
		return "malformed"
	case RejectionIndexOutOfRange:
		return "index_out_of_range"
	case RejectionNotLocked:
		return "not_locked"
	default:
		return "unknown"
	}
}

// IntegrityFailureError reports that all k blocks solved but the
// reconstructed payload's digest does not match BroadcastMetadata's
// integrity_check (spec.md §4.6, §7). The decoder does not auto-reset on
// this: it latches the failure and keeps accepting symbols, the
// conservative policy spec.md §9's open question recommends.
type IntegrityFailureError struct {
	Expected string
	Got      string
}

func (e *IntegrityFailureError) Error() string {
	return fmt.Sprintf("decoder: integrity check failed: expected %s, got %s", e.Expected, e.Got)
}

type row struct {
	mask    bitset
	payload []byte
}

// Decoder accumulates received symbols for one receiver session and
// reconstructs the original payload once enough symbols have arrived. It
// owns its buffers exclusively (spec.md §5) and is not safe for concurrent
// use.
type Decoder struct {
	k         int
	blockSize int
	origLen   int
	algorithm Algorithm
	want      string // expected integrity_check hex digest

	solved      []bool
	solvedCount int
	blocks      [][]byte

	buffered []row
	seenKeys map[string]bool

	complete   bool
	corrupted  bool
	corruptErr *IntegrityFailureError
}

// New creates a Decoder for a known BroadcastMetadata and integrity
// algorithm. With K == 0 (an empty payload) the decoder is complete as soon
// as it is created.
func New(meta frame.Metadata, algorithm Algorithm) *Decoder {
	d := &Decoder{
		k:         meta.K,
		blockSize: meta.BlockSize,
		origLen:   meta.OrigLen,
		algorithm: algorithm,
		want:      meta.IntegrityCheck,
		solved:    make([]bool, meta.K),
		blocks:    make([][]byte, meta.K),
		seenKeys:  make(map[string]bool),
	}
	if d.k == 0 {
		d.complete = true
		d.verifyIntegrity()
	}
	return d
}

// K returns the number of source blocks.
func (d *Decoder) K() int { return d.k }

// UniqueSymbols returns the number of distinct symbol fingerprints accepted
// into the decoder so far (degree-0 no-ops and repeat masks are not
// counted), independent of how many of those symbols have since been fully
// explained by peeling or Gaussian elimination.
func (d *Decoder) UniqueSymbols() int { return len(d.seenKeys) }

// Coverage returns the fraction of source blocks solved so far, in [0, 1].
// K == 0 (an empty payload) is defined as fully covered.
func (d *Decoder) Coverage() float64 {
	if d.k == 0 {
		return 1
	}
	return float64(d.solvedCount) / float64(d.k)
}

// Complete reports whether all k blocks have been solved (irrespective of
// whether the integrity check subsequently passed).
func (d *Decoder) Complete() bool { return d.complete }

// Corrupted reports whether a completed decode failed its integrity check.
func (d *Decoder) Corrupted() bool { return d.corrupted }

// Recovered returns the reconstructed, length-truncated payload. It is only
// meaningful once Complete() is true; callers should also check
// Corrupted().
func (d *Decoder) Recovered() []byte {
	if !d.complete {
		return nil
	}
	return block.Join(d.blocks, d.origLen)
}

// AddSymbol ingests one symbol (already parsed and range-checked by the
// frame package). It returns the Rejection classification (RejectionNone on
// success) and whether anything new was learned.
func (d *Decoder) AddSymbol(indices []int, payload []byte) (rejection Rejection, newlyAdded bool, err error) {
	if d.k == 0 {
		// orig_len == 0: decoder completes immediately on metadata
		// (spec.md §8); there is nothing to solve.
		d.complete = true
		return RejectionRedundant, false, nil
	}

	r := row{mask: bitsetFromIndices(d.k, indices), payload: append([]byte(nil), payload...)}
	deg := d.normalize(&r)

	if deg == 0 {
		if isZero(r.payload) {
			return RejectionRedundant, false, nil
		}
		return RejectionCorrupt, false, nil
	}

	key := r.mask.key()
	if d.seenKeys[key] {
		return RejectionDuplicate, false, nil
	}
	d.seenKeys[key] = true

	if deg == 1 {
		d.solveBlock(r.mask.singleIndex(), r.payload)
		d.peelCascade()
	} else {
		d.buffered = append(d.buffered, r)
	}
	// Completion probe / Gaussian-elimination fallback: once the
	// buffered pool is at least as large as the number of still-
	// unsolved blocks, it is plausible (though not guaranteed) that
	// the system is fully determined.
	if d.solvedCount < d.k && len(d.buffered) >= d.k-d.solvedCount {
		d.attemptGaussianElimination()
		d.peelCascade()
	}

	if d.solvedCount == d.k && !d.complete {
		d.complete = true
		d.verifyIntegrity()
	}

	return RejectionNone, true, nil
}

// normalize applies every already-solved block's payload into r (XOR-ing it
// out of both the mask and the payload) and returns the resulting degree.
func (d *Decoder) normalize(r *row) int {
	for _, idx := range r.mask.indices() {
		if d.solved[idx] {
			block.XOR(r.payload, d.blocks[idx])
			r.mask.clear(idx)
		}
	}
	return r.mask.popcount()
}

func (d *Decoder) solveBlock(idx int, payload []byte) {
	if d.solved[idx] {
		return
	}
	buf := make([]byte, d.blockSize)
	copy(buf, payload)
	d.blocks[idx] = buf
	d.solved[idx] = true
	d.solvedCount++
}

// peelCascade repeatedly normalizes buffered symbols against newly solved
// blocks, solving and removing any that reduce to degree 1, until a fixed
// point is reached. This is the linear-time fast path (spec.md §4.6 step 4).
func (d *Decoder) peelCascade() {
	changed := true
	for changed {
		changed = false
		remaining := d.buffered[:0]
		for i := range d.buffered {
			r := d.buffered[i]
			deg := d.normalize(&r)
			switch {
			case deg == 0:
				// Fully explained by now-solved blocks; drop silently,
				// this is bookkeeping fallout, not a fresh wire rejection.
				changed = true
			case deg == 1:
				d.solveBlock(r.mask.singleIndex(), r.payload)
				changed = true
			default:
				remaining = append(remaining, r)
			}
		}
		d.buffered = remaining
	}
}

// attemptGaussianElimination performs forward-and-back GF(2) elimination
// over the buffered rows, each XOR operating on whole 64-bit words
// (spec.md §5's O(k^3/64) bitwise-operation budget). Any row that reduces
// to weight 1 is a newly solved block; it is fed back via solveBlock and
// peelCascade picks up the rest. The buffered set is replaced by the
// (still unsolved, possibly better-reduced) rows that remain.
func (d *Decoder) attemptGaussianElimination() {
	rows := make([]row, len(d.buffered))
	for i, r := range d.buffered {
		rows[i] = row{mask: r.mask.clone(), payload: append([]byte(nil), r.payload...)}
	}

	pivotRow := make(map[int]int) // column -> row index used as pivot
	for col := 0; col < d.k; col++ {
		if d.solved[col] {
			continue
		}
		pivot := -1
		for i := range rows {
			if _, used := usedAsPivot(pivotRow, i); used {
				continue
			}
			if rows[i].mask.has(col) {
				pivot = i
				break
			}
		}
		if pivot == -1 {
			continue
		}
		pivotRow[col] = pivot
		for i := range rows {
			if i == pivot {
				continue
			}
			if rows[i].mask.has(col) {
				rows[i].mask.xorInPlace(rows[pivot].mask)
				block.XOR(rows[i].payload, rows[pivot].payload)
			}
		}
	}

	d.buffered = d.buffered[:0]
	for i := range rows {
		deg := rows[i].mask.popcount()
		switch {
		case deg == 0:
			// Either redundant or an internally-derived contradiction;
			// GE artifacts never raise a wire-level Rejection.
		case deg == 1:
			d.solveBlock(rows[i].mask.singleIndex(), rows[i].payload)
		default:
			d.buffered = append(d.buffered, rows[i])
		}
	}
}

func usedAsPivot(pivotRow map[int]int, rowIdx int) (int, bool) {
	for col, r := range pivotRow {
		if r == rowIdx {
			return col, true
		}
	}
	return 0, false
}

func (d *Decoder) verifyIntegrity() {
	got, err := Digest(d.algorithm, d.Recovered())
	if err != nil || got != d.want {
		d.corrupted = true
		d.corruptErr = &IntegrityFailureError{Expected: d.want, Got: got}
	}
}

// IntegrityError returns the latched integrity failure, or nil if the
// decode is not complete, not corrupted, or hasn't run yet.
func (d *Decoder) IntegrityError() error {
	if d.corruptErr == nil {
		return nil
	}
	return d.corruptErr
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
