// Package sync implements the receiver-side half of the sync-acquisition
// protocol: the IDLE → ACQUIRING → LOCKED state machine that lets a
// receiver join mid-stream without a handshake (spec.md §4.5).
//
// Grounded on the stateful switch shape of bifaci/relay_switch.go's
// RelaySwitch (teacher pack github.com/machinefabric/capdag-go) — an owned
// struct reached only through explicit methods, never package-level state,
// holding no mutex of its own, matching spec.md's
// design note that "the one global receiver the current code uses is an
// accident of the harness, not a contract."
package sync

import (
	"time"

	"github.com/rootnegativeone/tightbeam/internal/frame"
)

// State is the receiver's sync-acquisition state.
type State int

const (
	Idle State = iota
	Acquiring
	Locked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Acquiring:
		return "ACQUIRING"
	case Locked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

// DefaultWatchdogInterval is the inactivity window after which a LOCKED
// receiver resyncs back to ACQUIRING (spec.md §4.5).
const DefaultWatchdogInterval = 4500 * time.Millisecond

// Controller tracks sync-lock state for one receiver session. It is not
// safe for concurrent use; callers must serialize access per session
// (spec.md §5), matching the non-reentrant contract of bifaci.Host.
type Controller struct {
	state            State
	observedSyncs    map[uint64]bool
	metadata         *frame.Metadata
	confirmRequired  int
	watchdogInterval time.Duration
	lastSymbolAt     time.Time
	now              func() time.Time
}

// New creates a Controller in IDLE state. watchdogInterval <= 0 uses
// DefaultWatchdogInterval.
func New(watchdogInterval time.Duration) *Controller {
	if watchdogInterval <= 0 {
		watchdogInterval = DefaultWatchdogInterval
	}
	return &Controller{
		state:            Idle,
		observedSyncs:    make(map[uint64]bool),
		watchdogInterval: watchdogInterval,
		now:              time.Now,
	}
}

// State returns the current sync state.
func (c *Controller) State() State { return c.state }

// Metadata returns the installed metadata, or nil if none is installed yet.
func (c *Controller) Metadata() *frame.Metadata { return c.metadata }

// Reset returns the controller to IDLE and discards all sync/metadata
// state (full session reset, not a watchdog resync).
func (c *Controller) Reset() {
	c.state = Idle
	c.observedSyncs = make(map[uint64]bool)
	c.metadata = nil
}

// ObserveMeta installs metadata directly from an M-frame with no prior
// Sync observation (spec.md §4.5: "Metadata observed directly (M-frame)
// with no prior Sync is acceptable and installs metadata immediately").
// It does not by itself transition IDLE → ACQUIRING or → LOCKED.
func (c *Controller) ObserveMeta(m frame.Metadata) {
	if c.metadata == nil {
		c.metadata = &m
	}
}

// ObserveSync records a Sync frame's sequence and evaluates the
// IDLE → ACQUIRING → LOCKED transitions. It returns the state after
// processing this observation.
func (c *Controller) ObserveSync(s frame.Sync) State {
	if c.state == Idle {
		c.state = Acquiring
	}

	c.observedSyncs[s.Sequence] = true
	if s.ConfirmationRequired > 0 {
		c.confirmRequired = s.ConfirmationRequired
	}

	// A matching incoming Sync's metadata must never force a decoder
	// reset (spec.md §4.5); only install when absent or identical.
	if c.metadata == nil {
		c.metadata = &s.Metadata
	}

	if c.state == Acquiring && len(c.observedSyncs) >= c.confirmRequired && c.confirmRequired > 0 {
		c.state = Locked
		c.lastSymbolAt = c.now()
	}

	return c.state
}

// NoteSymbolAccepted marks the watchdog clock; call this whenever the
// decoder accepts (not merely receives) a symbol.
func (c *Controller) NoteSymbolAccepted() {
	c.lastSymbolAt = c.now()
}

// CheckWatchdog resyncs LOCKED → ACQUIRING if no symbol has been accepted
// within the watchdog interval. It clears the observed-sync set but keeps
// metadata (and, by construction, the decoder's already-solved blocks,
// which this controller does not own). Returns true if a resync occurred.
func (c *Controller) CheckWatchdog() bool {
	if c.state != Locked {
		return false
	}
	if c.now().Sub(c.lastSymbolAt) < c.watchdogInterval {
		return false
	}
	c.state = Acquiring
	c.observedSyncs = make(map[uint64]bool)
	return true
}

// CanAcceptSymbols reports whether the controller's state allows symbol
// ingestion. LOCKED always does. Before LOCKED, spec.md §4.5 leaves
// buffering a MAY: this implementation accepts (buffers) symbols in any
// state once metadata is known by any means (direct M-frame or an embedded
// Sync copy), and refuses only when metadata is wholly unknown — the
// NotLocked condition of spec.md §7 ("before sync lock AND no metadata
// installed"). The more conservative "acquiring + progress>0" gating spec.md
// suggests is left to the session orchestrator, which has the decoder's
// progress and can apply it if desired.
func (c *Controller) CanAcceptSymbols() bool {
	return c.state == Locked || c.metadata != nil
}
