// Package frame implements the Tightbeam wire codec: encoding and parsing
// of the three frame kinds (Meta, Sync, Symbol) to and from the compact
// ASCII strings spec.md §6 requires each QR code to carry.
//
// Grounded on bifaci/frame.go + bifaci/codec.go from the teacher pack
// (github.com/machinefabric/capdag-go): Frame is modeled the same way —
// a single struct covering every wire variant, discriminated by a type tag,
// with constructor functions per variant and an exhaustive switch at
// encode/decode time — but the teacher's integer-keyed CBOR map is replaced
// by the byte-exact JSON/hex-text grammar spec.md §6 mandates, and the
// generic-map-then-typed-extraction two-phase decode shape of
// bifaci.DecodeFrame is kept, adding a github.com/xeipuuv/gojsonschema
// structural-validation pass (mirroring schema_validation.go's
// SchemaValidator) between the two phases.
package frame

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Kind discriminates the three wire frame variants.
type Kind int

const (
	KindMeta Kind = iota
	KindSync
	KindSymbol
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "Meta"
	case KindSync:
		return "Sync"
	case KindSymbol:
		return "Symbol"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

const (
	tagMeta   = "M:"
	tagSync   = "Y:"
	tagSymbol = "S:"
)

// Metadata carries the invariants constant across a session (spec.md §3).
type Metadata struct {
	BlockSize      int    `json:"block_size"`
	K              int    `json:"k"`
	OrigLen        int    `json:"orig_len"`
	IntegrityCheck string `json:"integrity_check"`
}

// Equal reports whether two Metadata values are field-for-field identical.
func (m Metadata) Equal(o Metadata) bool {
	return m.BlockSize == o.BlockSize && m.K == o.K && m.OrigLen == o.OrigLen && m.IntegrityCheck == o.IntegrityCheck
}

// Sync carries a sync-preamble/re-insert frame's fields plus an embedded
// copy of the session metadata.
type Sync struct {
	Sequence             uint64
	Ordinal              int
	Total                int
	ConfirmationRequired int
	Metadata              Metadata
}

// SymbolFrame carries one fountain-coded output symbol.
type SymbolFrame struct {
	Sequence uint64
	Indices  []int
	Payload  []byte
}

// Frame is the tagged variant wire frame. Exactly one of Meta, Sync, Symbol
// is populated, selected by Kind.
type Frame struct {
	Kind   Kind
	Meta   *Metadata
	Sync   *Sync
	Symbol *SymbolFrame
}

// NewMeta builds a Meta frame.
func NewMeta(m Metadata) Frame { return Frame{Kind: KindMeta, Meta: &m} }

// NewSync builds a Sync frame.
func NewSync(s Sync) Frame { return Frame{Kind: KindSync, Sync: &s} }

// NewSymbol builds a Symbol frame.
func NewSymbol(s SymbolFrame) Frame { return Frame{Kind: KindSymbol, Symbol: &s} }

// MalformedFrameError reports any parse failure: unknown tag, bad integer,
// wrong hex length, or structurally invalid JSON. It is never fatal to a
// session (spec.md §7): callers increment a rejection counter and continue.
type MalformedFrameError struct {
	Op  string
	Err error
}

func (e *MalformedFrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("frame: malformed: %s", e.Op)
	}
	return fmt.Sprintf("frame: malformed: %s: %v", e.Op, e.Err)
}
func (e *MalformedFrameError) Unwrap() error { return e.Err }

// IndexOutOfRangeError reports a Symbol frame whose indices reference a
// source block outside [0, k).
type IndexOutOfRangeError struct {
	Index int
	K     int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("frame: index %d out of range [0, %d)", e.Index, e.K)
}

func malformed(op string, err error) error { return &MalformedFrameError{Op: op, Err: err} }

// metaSchema and syncSchema are Draft-7 JSON Schemas for the M: and Y:
// bodies. Validating against them before typed extraction catches
// wrong-typed or missing fields as a single MalformedFrame, the same role
// schema_validation.go's SchemaValidator plays for cap arguments.
const metaSchema = `{
  "type": "object",
  "required": ["block_size", "k", "orig_len", "integrity_check"],
  "properties": {
    "block_size": {"type": "integer"},
    "k": {"type": "integer"},
    "orig_len": {"type": "integer"},
    "integrity_check": {"type": "string"}
  }
}`

const syncSchema = `{
  "type": "object",
  "required": ["sequence", "ordinal", "total", "block_size", "k", "orig_len", "integrity_check", "confirmation_required"],
  "properties": {
    "sequence": {"type": "integer"},
    "ordinal": {"type": "integer"},
    "total": {"type": "integer"},
    "block_size": {"type": "integer"},
    "k": {"type": "integer"},
    "orig_len": {"type": "integer"},
    "integrity_check": {"type": "string"},
    "confirmation_required": {"type": "integer"}
  }
}`

var (
	metaSchemaLoader = gojsonschema.NewStringLoader(metaSchema)
	syncSchemaLoader = gojsonschema.NewStringLoader(syncSchema)
)

func validateAgainst(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Encode renders f to its wire string. It never fails for well-formed
// Frame values constructed via NewMeta/NewSync/NewSymbol.
func Encode(f Frame) (string, error) {
	switch f.Kind {
	case KindMeta:
		if f.Meta == nil {
			return "", malformed("encode.meta", fmt.Errorf("nil metadata"))
		}
		body, err := json.Marshal(f.Meta)
		if err != nil {
			return "", malformed("encode.meta", err)
		}
		return tagMeta + string(body), nil

	case KindSync:
		if f.Sync == nil {
			return "", malformed("encode.sync", fmt.Errorf("nil sync"))
		}
		s := f.Sync
		wire := struct {
			Sequence              uint64 `json:"sequence"`
			Ordinal               int    `json:"ordinal"`
			Total                 int    `json:"total"`
			BlockSize             int    `json:"block_size"`
			K                     int    `json:"k"`
			OrigLen               int    `json:"orig_len"`
			IntegrityCheck        string `json:"integrity_check"`
			ConfirmationRequired  int    `json:"confirmation_required"`
		}{
			Sequence:             s.Sequence,
			Ordinal:              s.Ordinal,
			Total:                s.Total,
			BlockSize:            s.Metadata.BlockSize,
			K:                    s.Metadata.K,
			OrigLen:              s.Metadata.OrigLen,
			IntegrityCheck:       s.Metadata.IntegrityCheck,
			ConfirmationRequired: s.ConfirmationRequired,
		}
		body, err := json.Marshal(wire)
		if err != nil {
			return "", malformed("encode.sync", err)
		}
		return tagSync + string(body), nil

	case KindSymbol:
		if f.Symbol == nil {
			return "", malformed("encode.symbol", fmt.Errorf("nil symbol"))
		}
		sym := f.Symbol
		idxParts := make([]string, len(sym.Indices))
		for i, idx := range sym.Indices {
			idxParts[i] = strconv.Itoa(idx)
		}
		return fmt.Sprintf("%s%d|%s|%s", tagSymbol, sym.Sequence, strings.Join(idxParts, ","), hex.EncodeToString(sym.Payload)), nil

	default:
		return "", malformed("encode", fmt.Errorf("unknown frame kind %v", f.Kind))
	}
}

// Parse reconstructs a Frame from its wire string. It never panics on
// truncated or malformed input; it returns a typed *MalformedFrameError or
// *IndexOutOfRangeError instead (spec.md §4.4, §7).
//
// k is the current session's source-block count, used to range-check
// Symbol indices, and blockSize is the expected decoded payload length;
// pass 0 (or a negative number) for either to skip that particular check,
// e.g. when parsing a Meta frame before k/blockSize are known.
func Parse(wire string, k, blockSize int) (Frame, error) {
	switch {
	case strings.HasPrefix(wire, tagMeta):
		return parseMeta(wire[len(tagMeta):])
	case strings.HasPrefix(wire, tagSync):
		return parseSync(wire[len(tagSync):])
	case strings.HasPrefix(wire, tagSymbol):
		return parseSymbol(wire[len(tagSymbol):], k, blockSize)
	default:
		return Frame{}, malformed("parse.tag", fmt.Errorf("unknown or truncated tag in %q", truncate(wire, 8)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseMeta(body string) (Frame, error) {
	if err := validateAgainst(metaSchemaLoader, []byte(body)); err != nil {
		return Frame{}, malformed("parse.meta.schema", err)
	}
	var m Metadata
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Frame{}, malformed("parse.meta.json", err)
	}
	return NewMeta(m), nil
}

func parseSync(body string) (Frame, error) {
	if err := validateAgainst(syncSchemaLoader, []byte(body)); err != nil {
		return Frame{}, malformed("parse.sync.schema", err)
	}
	var wire struct {
		Sequence             uint64 `json:"sequence"`
		Ordinal              int    `json:"ordinal"`
		Total                int    `json:"total"`
		BlockSize            int    `json:"block_size"`
		K                    int    `json:"k"`
		OrigLen              int    `json:"orig_len"`
		IntegrityCheck       string `json:"integrity_check"`
		ConfirmationRequired int    `json:"confirmation_required"`
	}
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return Frame{}, malformed("parse.sync.json", err)
	}
	return NewSync(Sync{
		Sequence:             wire.Sequence,
		Ordinal:              wire.Ordinal,
		Total:                wire.Total,
		ConfirmationRequired: wire.ConfirmationRequired,
		Metadata: Metadata{
			BlockSize:      wire.BlockSize,
			K:              wire.K,
			OrigLen:        wire.OrigLen,
			IntegrityCheck: wire.IntegrityCheck,
		},
	}), nil
}

func parseSymbol(body string, k, blockSize int) (Frame, error) {
	parts := strings.SplitN(body, "|", 3)
	if len(parts) != 3 {
		return Frame{}, malformed("parse.symbol.shape", fmt.Errorf("expected 3 '|'-separated fields, got %d", len(parts)))
	}

	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Frame{}, malformed("parse.symbol.sequence", err)
	}

	var indices []int
	if parts[1] != "" {
		seen := make(map[int]bool)
		for _, raw := range strings.Split(parts[1], ",") {
			idx, err := strconv.Atoi(raw)
			if err != nil {
				return Frame{}, malformed("parse.symbol.indices", err)
			}
			if idx < 0 {
				return Frame{}, malformed("parse.symbol.indices", fmt.Errorf("negative index %d", idx))
			}
			if k > 0 && idx >= k {
				return Frame{}, &IndexOutOfRangeError{Index: idx, K: k}
			}
			if seen[idx] {
				return Frame{}, malformed("parse.symbol.indices", fmt.Errorf("duplicate index %d", idx))
			}
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return Frame{}, malformed("parse.symbol.indices", fmt.Errorf("symbol frame must carry at least one index"))
	}

	payload, err := hex.DecodeString(parts[2])
	if err != nil {
		return Frame{}, malformed("parse.symbol.payload", err)
	}
	if blockSize > 0 && len(payload) != blockSize {
		return Frame{}, malformed("parse.symbol.payload", fmt.Errorf("payload length %d != block_size %d", len(payload), blockSize))
	}

	return NewSymbol(SymbolFrame{Sequence: seq, Indices: indices, Payload: payload}), nil
}
