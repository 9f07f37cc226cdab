package session

import (
	"math"

	"github.com/google/uuid"

	"github.com/rootnegativeone/tightbeam/internal/block"
	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/fountain"
	"github.com/rootnegativeone/tightbeam/internal/frame"
)

// BroadcastPackage is the materialized sender-side SessionState of spec.md
// §3: a deterministic, fully-built playback list plus the stats the
// external capture pipeline needs to drive a display.
type BroadcastPackage struct {
	ID               uuid.UUID
	Seed             int64
	Metadata         frame.Metadata
	Frames           []frame.Frame
	SystematicCount  int
	RedundantCount   int
	Options          Options
}

// PrepareBroadcast partitions payload, runs the fountain encoder, and
// interleaves the resulting symbol stream with a sync preamble and
// periodic re-inserts (spec.md §4.5), producing the finite playback list
// a sender plays out frame by frame. Session identifiers are assigned
// fresh google/uuid values, matching the teacher pack's MessageId UUID
// variant (bifaci/frame.go).
func PrepareBroadcast(payload []byte, opts ...Option) (*BroadcastPackage, error) {
	o := NewOptions(opts...)

	if o.BlockSize <= 0 {
		return nil, &InvalidMetadataError{Op: "prepare_broadcast", Reason: "block_size must be > 0"}
	}

	parts, err := block.Split(payload, o.BlockSize)
	if err != nil {
		return nil, &InvalidMetadataError{Op: "prepare_broadcast", Reason: err.Error()}
	}
	k := parts.K()

	redundantCount := o.RedundantCount
	if redundantCount <= 0 {
		redundantCount = int(math.Ceil(0.75 * float64(k)))
	}

	digest, err := decoder.Digest(o.IntegrityAlgorithm, payload)
	if err != nil {
		return nil, &InvalidMetadataError{Op: "prepare_broadcast", Reason: err.Error()}
	}

	meta := frame.Metadata{BlockSize: o.BlockSize, K: k, OrigLen: parts.OrigLen, IntegrityCheck: digest}

	enc := fountain.NewEncoder(parts, o.Seed, o.DegreeParams)
	systematic := enc.Systematic()
	redundant := enc.NextN(redundantCount)
	symbols := append(systematic, redundant...)

	var seq uint64
	nextSeq := func() uint64 {
		s := seq
		seq++
		return s
	}

	frames := make([]frame.Frame, 0, o.SyncPreambleCount+1+len(symbols)+len(symbols)/max1(o.SyncInterval))

	preambleTotal := o.SyncPreambleCount
	for i := 1; i <= preambleTotal; i++ {
		frames = append(frames, frame.NewSync(frame.Sync{
			Sequence:             nextSeq(),
			Ordinal:              i,
			Total:                preambleTotal,
			ConfirmationRequired: o.ConfirmationRequired,
			Metadata:             meta,
		}))
	}

	frames = append(frames, frame.NewMeta(meta))

	interval := o.SyncInterval
	if interval <= 0 {
		interval = 16
	}
	for i, sym := range symbols {
		frames = append(frames, frame.NewSymbol(frame.SymbolFrame{
			Sequence: nextSeq(),
			Indices:  sym.Indices,
			Payload:  sym.Payload,
		}))
		if (i+1)%interval == 0 {
			frames = append(frames, frame.NewSync(frame.Sync{
				Sequence:             nextSeq(),
				Ordinal:              0,
				Total:                preambleTotal,
				ConfirmationRequired: o.ConfirmationRequired,
				Metadata:             meta,
			}))
		}
	}

	return &BroadcastPackage{
		ID:              uuid.New(),
		Seed:            o.Seed,
		Metadata:        meta,
		Frames:          frames,
		SystematicCount: len(systematic),
		RedundantCount:  len(redundant),
		Options:         o,
	}, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
