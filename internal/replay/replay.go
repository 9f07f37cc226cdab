// Package replay serializes a captured frame stream (sender or receiver
// side) to a compact binary envelope, for fixture recording and offline
// reprocessing by cmd/tightbeamctl's replay subcommand.
//
// Grounded on bifaci/codec.go's EncodeFrame/DecodeFrame
// (github.com/machinefabric/capdag-go): an integer-keyed CBOR map matching
// a fixed wire layout. Rather than hand-building the map by hand as the
// teacher does, this package leans on fxamacker/cbor's `keyasint` struct
// tag support to get the same compact integer-keyed layout from ordinary
// struct fields.
package replay

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/degree"
	"github.com/rootnegativeone/tightbeam/internal/frame"
)

// EnvelopeVersion is bumped whenever the capture layout changes
// incompatibly.
const EnvelopeVersion = 1

// wireFrame is the CBOR-integer-keyed projection of frame.Frame. Only one
// of meta/sync/symbol is populated, selected by kind, mirroring the
// teacher's single-struct-many-optional-fields frame layout.
type wireFrame struct {
	Kind    int     `cbor:"0,keyasint"`
	Meta    *wireMeta `cbor:"1,keyasint,omitempty"`
	Sync    *wireSync `cbor:"2,keyasint,omitempty"`
	Symbol  *wireSymbol `cbor:"3,keyasint,omitempty"`
}

type wireMeta struct {
	BlockSize      int    `cbor:"0,keyasint"`
	K              int    `cbor:"1,keyasint"`
	OrigLen        int    `cbor:"2,keyasint"`
	IntegrityCheck string `cbor:"3,keyasint"`
}

type wireSync struct {
	Sequence             uint64   `cbor:"0,keyasint"`
	Ordinal              int      `cbor:"1,keyasint"`
	Total                int      `cbor:"2,keyasint"`
	ConfirmationRequired int      `cbor:"3,keyasint"`
	Metadata             wireMeta `cbor:"4,keyasint"`
}

type wireSymbol struct {
	Sequence uint64 `cbor:"0,keyasint"`
	Indices  []int  `cbor:"1,keyasint"`
	Payload  []byte `cbor:"2,keyasint"`
}

// Capture is the full recorded session: enough to replay a broadcast or
// a receiver ingestion bit-for-bit offline, independent of any live QR
// capture pipeline.
type Capture struct {
	Version            int               `cbor:"0,keyasint"`
	SessionID          uuid.UUID         `cbor:"1,keyasint"`
	Seed               int64             `cbor:"2,keyasint"`
	IntegrityAlgorithm decoder.Algorithm `cbor:"3,keyasint"`
	DegreeParams       degree.Params     `cbor:"4,keyasint"`
	WireFrames         []wireFrame       `cbor:"5,keyasint"`
	CreatedUnixNano    int64             `cbor:"6,keyasint"`
}

// NewCapture builds a Capture from a session ID, seed, integrity algorithm,
// degree parameters, the ordered frame list, and a caller-supplied
// timestamp (replay.Capture never calls time.Now itself, keeping capture
// construction deterministic and test-friendly).
func NewCapture(id uuid.UUID, seed int64, alg decoder.Algorithm, params degree.Params, frames []frame.Frame, createdUnixNano int64) (Capture, error) {
	wire := make([]wireFrame, len(frames))
	for i, f := range frames {
		w, err := toWireFrame(f)
		if err != nil {
			return Capture{}, fmt.Errorf("replay: frame %d: %w", i, err)
		}
		wire[i] = w
	}
	return Capture{
		Version:            EnvelopeVersion,
		SessionID:          id,
		Seed:               seed,
		IntegrityAlgorithm: alg,
		DegreeParams:       params,
		WireFrames:         wire,
		CreatedUnixNano:    createdUnixNano,
	}, nil
}

// Marshal encodes a Capture to CBOR bytes.
func Marshal(c Capture) ([]byte, error) {
	return cbor.Marshal(c)
}

// Unmarshal decodes a Capture from CBOR bytes.
func Unmarshal(data []byte) (Capture, error) {
	var c Capture
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Capture{}, fmt.Errorf("replay: decode: %w", err)
	}
	if c.Version != EnvelopeVersion {
		return Capture{}, fmt.Errorf("replay: unsupported envelope version %d", c.Version)
	}
	return c, nil
}

// Frames decodes the Capture's wire frames back into frame.Frame values, in
// their original order, for direct replay through a Session.
func (c Capture) Frames() ([]frame.Frame, error) {
	out := make([]frame.Frame, len(c.WireFrames))
	for i, w := range c.WireFrames {
		f, err := fromWireFrame(w)
		if err != nil {
			return nil, fmt.Errorf("replay: frame %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func toWireFrame(f frame.Frame) (wireFrame, error) {
	switch f.Kind {
	case frame.KindMeta:
		if f.Meta == nil {
			return wireFrame{}, fmt.Errorf("nil meta")
		}
		return wireFrame{Kind: int(f.Kind), Meta: &wireMeta{
			BlockSize: f.Meta.BlockSize, K: f.Meta.K, OrigLen: f.Meta.OrigLen, IntegrityCheck: f.Meta.IntegrityCheck,
		}}, nil
	case frame.KindSync:
		if f.Sync == nil {
			return wireFrame{}, fmt.Errorf("nil sync")
		}
		s := f.Sync
		return wireFrame{Kind: int(f.Kind), Sync: &wireSync{
			Sequence:             s.Sequence,
			Ordinal:              s.Ordinal,
			Total:                s.Total,
			ConfirmationRequired: s.ConfirmationRequired,
			Metadata: wireMeta{
				BlockSize: s.Metadata.BlockSize, K: s.Metadata.K, OrigLen: s.Metadata.OrigLen, IntegrityCheck: s.Metadata.IntegrityCheck,
			},
		}}, nil
	case frame.KindSymbol:
		if f.Symbol == nil {
			return wireFrame{}, fmt.Errorf("nil symbol")
		}
		sym := f.Symbol
		return wireFrame{Kind: int(f.Kind), Symbol: &wireSymbol{
			Sequence: sym.Sequence, Indices: append([]int(nil), sym.Indices...), Payload: append([]byte(nil), sym.Payload...),
		}}, nil
	default:
		return wireFrame{}, fmt.Errorf("unknown frame kind %v", f.Kind)
	}
}

func fromWireFrame(w wireFrame) (frame.Frame, error) {
	switch frame.Kind(w.Kind) {
	case frame.KindMeta:
		if w.Meta == nil {
			return frame.Frame{}, fmt.Errorf("missing meta body")
		}
		return frame.NewMeta(frame.Metadata{
			BlockSize: w.Meta.BlockSize, K: w.Meta.K, OrigLen: w.Meta.OrigLen, IntegrityCheck: w.Meta.IntegrityCheck,
		}), nil
	case frame.KindSync:
		if w.Sync == nil {
			return frame.Frame{}, fmt.Errorf("missing sync body")
		}
		s := w.Sync
		return frame.NewSync(frame.Sync{
			Sequence:             s.Sequence,
			Ordinal:              s.Ordinal,
			Total:                s.Total,
			ConfirmationRequired: s.ConfirmationRequired,
			Metadata: frame.Metadata{
				BlockSize: s.Metadata.BlockSize, K: s.Metadata.K, OrigLen: s.Metadata.OrigLen, IntegrityCheck: s.Metadata.IntegrityCheck,
			},
		}), nil
	case frame.KindSymbol:
		if w.Symbol == nil {
			return frame.Frame{}, fmt.Errorf("missing symbol body")
		}
		return frame.NewSymbol(frame.SymbolFrame{
			Sequence: w.Symbol.Sequence, Indices: w.Symbol.Indices, Payload: w.Symbol.Payload,
		}), nil
	default:
		return frame.Frame{}, fmt.Errorf("unknown frame kind %d", w.Kind)
	}
}
