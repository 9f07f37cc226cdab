package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/frame"
	"github.com/rootnegativeone/tightbeam/internal/metrics"
	"github.com/rootnegativeone/tightbeam/internal/sync"
)

// Status is the idempotent, read-only view the capture pipeline polls after
// every ingested wire string (spec.md §4.7 receiver_status).
type Status struct {
	NewlyAdded    bool
	Redundant     bool
	Rejection     decoder.Rejection
	SyncState     sync.State
	SymbolsSeen   int
	UniqueSymbols int
	Coverage      float64
	DecodeComplete bool
	Corrupted     bool
	RecoveredText *string
	Metrics       metrics.Snapshot
	// Err carries the typed error behind a non-None Rejection, when one
	// exists (*frame.MalformedFrameError, *frame.IndexOutOfRangeError,
	// *session.NotLockedError), discoverable via errors.As. It is nil for
	// Redundant/Duplicate rejections and on acceptance.
	Err error
}

// Session is the receiver-side orchestrator: it owns a sync controller, a
// (lazily created, metadata-gated) decoder, and a metrics recorder, wiring
// them together behind reset_receiver / receiver_add_symbol / receiver_status
// exactly as spec.md §4.7 names them.
//
// Modeled after the teacher pack's bifaci.Host: a long-lived struct reached
// only through explicit constructors and methods, never package-level
// state (spec.md's design note on the "one global receiver" accident).
// A Session is not safe for concurrent use; callers must serialize calls
// per session.
type Session struct {
	id      uuid.UUID
	opts    Options
	logger  *slog.Logger
	ctrl    *sync.Controller
	dec     *decoder.Decoder
	rec     *metrics.Recorder
	symbols int
}

// NewReceiver constructs a fresh receiver session in IDLE state.
func NewReceiver(opts ...Option) *Session {
	o := NewOptions(opts...)
	return &Session{
		id:     uuid.New(),
		opts:   o,
		logger: o.Logger,
		ctrl:   sync.New(0),
		rec:    metrics.New(),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// ResetReceiver discards all sync, decoder, and metrics state, then installs
// fresh BroadcastMetadata so the receiver can immediately start buffering
// symbols against it (reset_receiver in spec.md §4.7), matching
// PrepareBroadcast's own metadata validation. The session stays in IDLE
// sync state; installing metadata only pre-arms the decoder, it does not
// forge sync lock.
func (s *Session) ResetReceiver(blockSize, k, origLen int, integrityCheck string) error {
	if blockSize <= 0 || k <= 0 || origLen > k*blockSize {
		return &InvalidMetadataError{
			Op:     "reset_receiver",
			Reason: "block_size and k must be > 0 and orig_len must be <= k*block_size",
		}
	}

	s.ctrl.Reset()
	s.dec = nil
	s.rec = metrics.New()
	s.symbols = 0
	s.ctrl.ObserveMeta(frame.Metadata{
		BlockSize:      blockSize,
		K:              k,
		OrigLen:        origLen,
		IntegrityCheck: integrityCheck,
	})
	s.ensureDecoder()

	if s.logger != nil {
		s.logger.Debug("tightbeam: receiver reset", "session", s.id, "k", k, "block_size", blockSize)
	}
	return nil
}

// Status returns the current receiver_status snapshot without ingesting
// anything. It is side-effect free and safe to call at any point, including
// before the first frame arrives.
func (s *Session) Status() Status {
	return s.status(decoder.RejectionNone, false)
}

// IngestWire parses one wire string in the context of the session's current
// k/block_size (0/0 before metadata is known) and applies it, implementing
// receiver_add_symbol end to end from a raw QR-decoded string. A malformed
// or unrecognized frame never returns an error to the caller: it is
// reflected in the returned Status only, matching spec.md §7's "parse
// failures are never fatal" contract.
func (s *Session) IngestWire(wire string) Status {
	k, blockSize := 0, 0
	if m := s.ctrl.Metadata(); m != nil {
		k, blockSize = m.K, m.BlockSize
	}

	f, err := frame.Parse(wire, k, blockSize)
	if err != nil {
		rejection := decoder.RejectionMalformed
		var rangeErr *frame.IndexOutOfRangeError
		if errors.As(err, &rangeErr) {
			rejection = decoder.RejectionIndexOutOfRange
		}
		s.rec.RecordAttempt(0, rejection)
		return s.status(rejection, false, withErr(err))
	}
	return s.ingest(f)
}

// AddFrame applies an already-parsed Frame, for callers that decode QR
// payloads themselves rather than handing Session a raw wire string.
func (s *Session) AddFrame(f frame.Frame) Status {
	return s.ingest(f)
}

func (s *Session) ingest(f frame.Frame) Status {
	switch f.Kind {
	case frame.KindSync:
		state := s.ctrl.ObserveSync(*f.Sync)
		s.ensureDecoder()
		return s.status(decoder.RejectionNone, false, withSyncState(state))

	case frame.KindMeta:
		s.ctrl.ObserveMeta(*f.Meta)
		s.ensureDecoder()
		return s.status(decoder.RejectionNone, false)

	case frame.KindSymbol:
		return s.ingestSymbol(*f.Symbol)

	default:
		err := &frame.MalformedFrameError{Op: "ingest", Err: fmt.Errorf("unknown frame kind %v", f.Kind)}
		s.rec.RecordAttempt(0, decoder.RejectionMalformed)
		return s.status(decoder.RejectionMalformed, false, withErr(err))
	}
}

func (s *Session) ingestSymbol(sym frame.SymbolFrame) Status {
	if !s.ctrl.CanAcceptSymbols() {
		err := &NotLockedError{}
		s.rec.RecordAttempt(len(sym.Indices), decoder.RejectionNotLocked)
		return s.status(decoder.RejectionNotLocked, false, withErr(err))
	}
	s.ensureDecoder()
	if s.dec == nil {
		// Unreachable given CanAcceptSymbols' current contract (it only
		// returns true once metadata is known, and ensureDecoder builds
		// the decoder from that same metadata), but kept as a defensive
		// NotLocked rather than silently dropping the symbol.
		err := &NotLockedError{}
		s.rec.RecordAttempt(len(sym.Indices), decoder.RejectionNotLocked)
		return s.status(decoder.RejectionNotLocked, false, withErr(err))
	}

	s.symbols++
	rejection, added, err := s.dec.AddSymbol(sym.Indices, sym.Payload)
	s.rec.RecordAttempt(len(sym.Indices), rejection)
	if err != nil {
		return s.status(decoder.RejectionCorrupt, added, withErr(err))
	}
	if rejection == decoder.RejectionNone {
		s.ctrl.NoteSymbolAccepted()
	}
	if s.dec.Complete() {
		s.rec.RecordDecodeComplete()
	}
	return s.status(rejection, added)
}

func (s *Session) ensureDecoder() {
	if s.dec != nil {
		return
	}
	m := s.ctrl.Metadata()
	if m == nil {
		return
	}
	s.dec = decoder.New(*m, s.opts.IntegrityAlgorithm)
}

// CheckWatchdog re-evaluates the LOCKED inactivity window (spec.md §4.5) and
// should be called periodically by the capture pipeline's own clock, not
// just on frame arrival.
func (s *Session) CheckWatchdog() bool {
	return s.ctrl.CheckWatchdog()
}

type statusOpt func(*Status)

func withSyncState(st sync.State) statusOpt { return func(s *Status) { s.SyncState = st } }
func withErr(err error) statusOpt          { return func(s *Status) { s.Err = err } }

// status builds the current idempotent Status snapshot (receiver_status).
func (s *Session) status(rejection decoder.Rejection, newlyAdded bool, opts ...statusOpt) Status {
	st := Status{
		NewlyAdded:  newlyAdded,
		Redundant:   rejection == decoder.RejectionRedundant,
		Rejection:   rejection,
		SyncState:   s.ctrl.State(),
		SymbolsSeen: s.symbols,
		Metrics:     s.rec.Snapshot(),
	}
	if s.dec != nil {
		st.Coverage = s.dec.Coverage()
		st.UniqueSymbols = s.dec.UniqueSymbols()
		st.DecodeComplete = s.dec.Complete()
		st.Corrupted = s.dec.Corrupted()
		if st.DecodeComplete && !st.Corrupted {
			text := string(s.dec.Recovered())
			st.RecoveredText = &text
		}
	}
	for _, o := range opts {
		o(&st)
	}
	return st
}
