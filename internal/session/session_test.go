package session_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/frame"
	"github.com/rootnegativeone/tightbeam/internal/session"
	"github.com/rootnegativeone/tightbeam/internal/sync"
)

// Scenario 1 (spec.md §8): short ASCII payload, systematic symbols alone
// recover the exact bytes.
func TestScenario1SystematicOnlyRecoversExactBytes(t *testing.T) {
	payload := []byte("The quick brown fox jumps over the lazy dog!!!!\n")
	require.Equal(t, 48, len(payload))

	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(16),
		session.WithSeed(1),
		session.WithSyncPreambleCount(4),
		session.WithConfirmationRequired(2),
	)
	require.NoError(t, err)
	require.Equal(t, 3, pkg.Metadata.K)

	rx := session.NewReceiver(session.WithIntegrityAlgorithm(pkg.Options.IntegrityAlgorithm))
	var final session.Status
	for _, f := range pkg.Frames {
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		final = rx.IngestWire(wire)
		if final.DecodeComplete {
			break
		}
	}
	require.True(t, final.DecodeComplete)
	require.False(t, final.Corrupted)
	require.NotNil(t, final.RecoveredText)
	assert.Equal(t, string(payload), *final.RecoveredText)
}

// Scenario 2 (spec.md §8): zero payload, last block padded, recovery must
// truncate to orig_len exactly.
func TestScenario2LastBlockPaddingTruncated(t *testing.T) {
	payload := make([]byte, 200)
	pkg, err := session.PrepareBroadcast(payload, session.WithBlockSize(64), session.WithSeed(42))
	require.NoError(t, err)
	require.Equal(t, 4, pkg.Metadata.K)

	rx := session.NewReceiver()
	var final session.Status
	for _, f := range pkg.Frames {
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		final = rx.IngestWire(wire)
		if final.DecodeComplete {
			break
		}
	}
	require.True(t, final.DecodeComplete)
	require.NotNil(t, final.RecoveredText)
	assert.Equal(t, 200, len(*final.RecoveredText))
	assert.Equal(t, string(payload), *final.RecoveredText)
}

// Scenario 3 (spec.md §8): tiny payload behind a 4-frame sync preamble; the
// receiver walks IDLE -> ACQUIRING (after sync #1) -> LOCKED (after sync #2)
// -> complete, with confirmation_required = 2.
func TestScenario3PreambleDrivesAcquisitionThenLock(t *testing.T) {
	pkg, err := session.PrepareBroadcast([]byte("hello"),
		session.WithBlockSize(16),
		session.WithSeed(7),
		session.WithSyncPreambleCount(4),
		session.WithConfirmationRequired(2),
	)
	require.NoError(t, err)
	require.Equal(t, 1, pkg.Metadata.K)

	rx := session.NewReceiver()

	wire1, err := frame.Encode(pkg.Frames[0])
	require.NoError(t, err)
	st := rx.IngestWire(wire1)
	assert.Equal(t, sync.Acquiring, st.SyncState)

	wire2, err := frame.Encode(pkg.Frames[1])
	require.NoError(t, err)
	st = rx.IngestWire(wire2)
	assert.Equal(t, sync.Locked, st.SyncState)

	for _, f := range pkg.Frames[2:] {
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		st = rx.IngestWire(wire)
		if st.DecodeComplete {
			break
		}
	}
	require.True(t, st.DecodeComplete)
	require.NotNil(t, st.RecoveredText)
	assert.Equal(t, "hello", *st.RecoveredText)
}

// Scenario 4 (spec.md §8): 1024-byte random payload, k=16, drop 40% of the
// first 32 emitted symbols uniformly at random; recovery must succeed
// within <= 32 accepted symbols.
func TestScenario4UniformLossWithinFirst32(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	payload := make([]byte, 1024)
	rng.Read(payload)

	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(64),
		session.WithSeed(123),
		session.WithSyncPreambleCount(0),
		session.WithConfirmationRequired(0),
		session.WithRedundantCount(32),
	)
	require.NoError(t, err)
	require.Equal(t, 16, pkg.Metadata.K)

	rx := session.NewReceiver()
	_, err = frame.Encode(pkg.Frames[0])
	require.NoError(t, err)

	accepted := 0
	dropper := rand.New(rand.NewSource(999))
	var final session.Status
	for _, f := range pkg.Frames {
		if f.Kind == frame.KindSymbol && dropper.Float64() < 0.4 {
			continue
		}
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		final = rx.IngestWire(wire)
		if f.Kind == frame.KindSymbol && final.NewlyAdded {
			accepted++
		}
		if final.DecodeComplete {
			break
		}
	}
	require.True(t, final.DecodeComplete)
	assert.LessOrEqual(t, accepted, 32)
	require.NotNil(t, final.RecoveredText)
	assert.Equal(t, string(payload), *final.RecoveredText)
}

// Scenario 5 (spec.md §8): same payload as scenario 4, but symbols 5..12
// (counting symbol frames from 0) are dropped contiguously (a burst). Remaining redundant symbols must still
// drive recovery to completion.
func TestScenario5BurstLossRecovers(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	payload := make([]byte, 1024)
	rng.Read(payload)

	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(64),
		session.WithSeed(123),
		session.WithSyncPreambleCount(0),
		session.WithConfirmationRequired(0),
		session.WithRedundantCount(32),
	)
	require.NoError(t, err)

	rx := session.NewReceiver()
	var final session.Status
	symbolOrdinal := -1
	for _, f := range pkg.Frames {
		if f.Kind == frame.KindSymbol {
			symbolOrdinal++
			if symbolOrdinal >= 5 && symbolOrdinal <= 12 {
				continue
			}
		}
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		final = rx.IngestWire(wire)
		if final.DecodeComplete {
			break
		}
	}
	require.True(t, final.DecodeComplete)
	require.NotNil(t, final.RecoveredText)
	assert.Equal(t, string(payload), *final.RecoveredText)
}

// Scenario 6 (spec.md §8): a receiver joins mid-stream at frame 20, past the
// preamble; it must lock on the next two Sync re-inserts it observes and
// still recover the payload.
func TestScenario6MidStreamJoinLocksOnNextTwoReinserts(t *testing.T) {
	payload := make([]byte, 1024)
	rand.New(rand.NewSource(5)).Read(payload)

	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(64),
		session.WithSeed(5),
		session.WithSyncPreambleCount(4),
		session.WithSyncInterval(8),
		session.WithConfirmationRequired(2),
		session.WithRedundantCount(48),
	)
	require.NoError(t, err)

	rx := session.NewReceiver()

	var final session.Status
	syncsSeen := 0
	for i, f := range pkg.Frames {
		if i < 20 {
			continue
		}
		wire, err := frame.Encode(f)
		require.NoError(t, err)
		final = rx.IngestWire(wire)
		if f.Kind == frame.KindSync {
			syncsSeen++
			if syncsSeen == 2 {
				assert.Equal(t, sync.Locked, final.SyncState)
			}
		}
		if final.DecodeComplete {
			break
		}
	}
	require.True(t, final.DecodeComplete)
	require.NotNil(t, final.RecoveredText)
	assert.Equal(t, string(payload), *final.RecoveredText)
}

// Sync lock monotonicity (spec.md §8): once LOCKED, a resync caused by the
// watchdog never discards already-solved blocks, and the session stays
// usable across the ACQUIRING dip.
func TestSyncLockMonotoneAcrossWatchdogResync(t *testing.T) {
	payload := []byte("0123456789abcdef")
	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(16),
		session.WithSeed(9),
		session.WithSyncPreambleCount(2),
		session.WithConfirmationRequired(2),
	)
	require.NoError(t, err)

	rx := session.NewReceiver()
	for _, f := range pkg.Frames[:3] {
		wire, _ := frame.Encode(f)
		rx.IngestWire(wire)
	}

	resynced := rx.CheckWatchdog()
	_ = resynced // depends on wall-clock elapsed; not asserted deterministically here

	wire, _ := frame.Encode(pkg.Frames[3])
	st := rx.IngestWire(wire)
	assert.False(t, st.Corrupted)
}

// Commutativity (spec.md §8): the final recovered payload does not depend
// on the order in which accepted symbols arrive.
func TestCommutativityOfSymbolOrder(t *testing.T) {
	payload := []byte("order independent recovery payload!!")
	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(8),
		session.WithSeed(77),
		session.WithSyncPreambleCount(0),
	)
	require.NoError(t, err)

	var symbolFrames []frame.Frame
	for _, f := range pkg.Frames {
		if f.Kind == frame.KindSymbol || f.Kind == frame.KindMeta {
			symbolFrames = append(symbolFrames, f)
		}
	}

	rxForward := session.NewReceiver()
	var forward session.Status
	for _, f := range symbolFrames {
		wire, _ := frame.Encode(f)
		forward = rxForward.IngestWire(wire)
	}

	reversed := make([]frame.Frame, len(symbolFrames))
	copy(reversed, symbolFrames)
	meta := reversed[0]
	rest := reversed[1:]
	for i, j := 0, len(rest)-1; i < j; i, j = i+1, j-1 {
		rest[i], rest[j] = rest[j], rest[i]
	}
	reversed = append([]frame.Frame{meta}, rest...)

	rxReverse := session.NewReceiver()
	var reverse session.Status
	for _, f := range reversed {
		wire, _ := frame.Encode(f)
		reverse = rxReverse.IngestWire(wire)
	}

	require.True(t, forward.DecodeComplete)
	require.True(t, reverse.DecodeComplete)
	assert.Equal(t, *forward.RecoveredText, *reverse.RecoveredText)
}

func TestResetReceiverReturnsToIdle(t *testing.T) {
	rx := session.NewReceiver()
	pkg, err := session.PrepareBroadcast([]byte("abc"), session.WithBlockSize(4), session.WithSeed(1))
	require.NoError(t, err)
	wire, _ := frame.Encode(pkg.Frames[0])
	rx.IngestWire(wire)

	require.NoError(t, rx.ResetReceiver(pkg.Metadata.BlockSize, pkg.Metadata.K, pkg.Metadata.OrigLen, pkg.Metadata.IntegrityCheck))
	st := rx.IngestWire("not a valid frame")
	assert.Equal(t, sync.Idle, st.SyncState)
	assert.False(t, st.DecodeComplete)
	assert.Equal(t, decoder.RejectionMalformed, st.Rejection)
	require.Error(t, st.Err)
}

// ResetReceiver rejects metadata it cannot honor, instead of silently
// leaving the session in a half-reset state (spec.md §7 InvalidMetadata).
func TestResetReceiverRejectsInvalidMetadata(t *testing.T) {
	rx := session.NewReceiver()
	err := rx.ResetReceiver(0, 4, 10, "deadbeef")
	require.Error(t, err)
	var invalid *session.InvalidMetadataError
	require.ErrorAs(t, err, &invalid)
}

// A symbol ingested before any metadata is known is NotLocked, not a
// generic corrupt frame, and the attempt still reaches the metrics
// recorder (spec.md §7).
func TestSymbolBeforeMetadataIsNotLocked(t *testing.T) {
	pkg, err := session.PrepareBroadcast([]byte("abcdefgh"), session.WithBlockSize(4), session.WithSeed(1), session.WithSyncPreambleCount(0))
	require.NoError(t, err)

	var symbolWire string
	for _, f := range pkg.Frames {
		if f.Kind == frame.KindSymbol {
			symbolWire, err = frame.Encode(f)
			require.NoError(t, err)
			break
		}
	}
	require.NotEmpty(t, symbolWire)

	rx := session.NewReceiver()
	st := rx.IngestWire(symbolWire)
	assert.Equal(t, decoder.RejectionNotLocked, st.Rejection)
	var notLocked *session.NotLockedError
	require.ErrorAs(t, st.Err, &notLocked)
	assert.Equal(t, 1, st.Metrics.Attempts)
	assert.Equal(t, 1, st.Metrics.RejectionsByKind[decoder.RejectionNotLocked])
}

// A Symbol frame whose indices reference an out-of-range block is reported
// as IndexOutOfRange, not a generic malformed frame, and the error is
// discoverable via errors.As.
func TestSymbolIndexOutOfRangeIsDistinguished(t *testing.T) {
	pkg, err := session.PrepareBroadcast([]byte("abcdefgh"), session.WithBlockSize(4), session.WithSeed(1), session.WithSyncPreambleCount(0))
	require.NoError(t, err)

	rx := session.NewReceiver()
	metaWire, err := frame.Encode(pkg.Frames[0])
	require.NoError(t, err)
	rx.IngestWire(metaWire)

	badWire, err := frame.Encode(frame.NewSymbol(frame.SymbolFrame{Sequence: 99, Indices: []int{pkg.Metadata.K + 5}, Payload: make([]byte, pkg.Metadata.BlockSize)}))
	require.NoError(t, err)

	st := rx.IngestWire(badWire)
	assert.Equal(t, decoder.RejectionIndexOutOfRange, st.Rejection)
	var rangeErr *frame.IndexOutOfRangeError
	require.ErrorAs(t, st.Err, &rangeErr)
	assert.Equal(t, 1, st.Metrics.RejectionsByKind[decoder.RejectionIndexOutOfRange])
}

// Status() is a pure read: calling it repeatedly never mutates metrics or
// sync state.
func TestStatusIsIdempotent(t *testing.T) {
	rx := session.NewReceiver()
	first := rx.Status()
	second := rx.Status()
	assert.Equal(t, first.SyncState, second.SyncState)
	assert.Equal(t, first.Metrics.Attempts, second.Metrics.Attempts)
	assert.Equal(t, 0, second.Metrics.Attempts)
}
