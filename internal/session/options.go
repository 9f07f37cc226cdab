// Package session is the orchestrator: it exposes the "reset / feed symbol
// / status" contract spec.md §4.7 describes to the external capture
// pipeline, wiring together the partitioner, degree sampler, fountain
// encoder, frame codec, sync controller, decoder, and metrics recorder.
//
// Session is modeled as an explicitly-owned value reached only through its
// constructors and methods, generalizing the teacher pack's bifaci.Host (a
// long-lived struct driven entirely through method calls, never a
// package-level singleton) — spec.md's design note calls the "one global
// receiver" shape an accident of the original harness, not a contract.
package session

import (
	"log/slog"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/degree"
	"github.com/rootnegativeone/tightbeam/internal/logging"
)

// Options configures a broadcast session. Defaults match spec.md §6.
type Options struct {
	BlockSize             int
	RedundantCount        int // 0 means "compute ceil(0.75*k) once k is known"
	SyncPreambleCount     int
	SyncInterval          int
	ConfirmationRequired  int
	Seed                  int64
	IntegrityAlgorithm    decoder.Algorithm
	DegreeParams          degree.Params
	Logger                *slog.Logger
}

// Option mutates Options; used with NewOptions following the functional-
// options shape of bifaci.Limits/DefaultLimits/NegotiateLimits.
type Option func(*Options)

// DefaultOptions returns the spec.md §6 defaults. Seed is left at 0 (the
// caller is expected to supply a fresh random seed via WithSeed for a real
// broadcast; 0 is deterministic and convenient for tests).
func DefaultOptions() Options {
	return Options{
		BlockSize:            64,
		RedundantCount:       0,
		SyncPreambleCount:    4,
		SyncInterval:         16,
		ConfirmationRequired: 2,
		Seed:                 0,
		IntegrityAlgorithm:   decoder.AlgorithmSHA256,
		DegreeParams:         degree.DefaultParams(),
		Logger:               logging.Logger(),
	}
}

// NewOptions builds Options from DefaultOptions with opts applied in order.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.Logger()
	}
	return o
}

func WithBlockSize(n int) Option            { return func(o *Options) { o.BlockSize = n } }
func WithRedundantCount(n int) Option       { return func(o *Options) { o.RedundantCount = n } }
func WithSyncPreambleCount(n int) Option    { return func(o *Options) { o.SyncPreambleCount = n } }
func WithSyncInterval(n int) Option         { return func(o *Options) { o.SyncInterval = n } }
func WithConfirmationRequired(n int) Option { return func(o *Options) { o.ConfirmationRequired = n } }
func WithSeed(seed int64) Option            { return func(o *Options) { o.Seed = seed } }
func WithIntegrityAlgorithm(a decoder.Algorithm) Option {
	return func(o *Options) { o.IntegrityAlgorithm = a }
}
func WithDegreeParams(p degree.Params) Option { return func(o *Options) { o.DegreeParams = p } }
func WithLogger(l *slog.Logger) Option        { return func(o *Options) { o.Logger = l } }
