package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootnegativeone/tightbeam/internal/frame"
	"github.com/rootnegativeone/tightbeam/internal/sync"
)

func meta() frame.Metadata {
	return frame.Metadata{BlockSize: 16, K: 1, OrigLen: 5, IntegrityCheck: "x"}
}

func TestLifecycleIdleToAcquiringToLocked(t *testing.T) {
	c := sync.New(0)
	require.Equal(t, sync.Idle, c.State())

	s1 := frame.Sync{Sequence: 1, Ordinal: 1, Total: 4, ConfirmationRequired: 2, Metadata: meta()}
	require.Equal(t, sync.Acquiring, c.ObserveSync(s1))

	s2 := frame.Sync{Sequence: 2, Ordinal: 2, Total: 4, ConfirmationRequired: 2, Metadata: meta()}
	require.Equal(t, sync.Locked, c.ObserveSync(s2))

	require.NotNil(t, c.Metadata())
	assert.True(t, c.Metadata().Equal(meta()))
}

func TestMatchingMetadataNeverForcesReset(t *testing.T) {
	c := sync.New(0)
	s1 := frame.Sync{Sequence: 1, ConfirmationRequired: 2, Metadata: meta()}
	s2 := frame.Sync{Sequence: 2, ConfirmationRequired: 2, Metadata: meta()}
	c.ObserveSync(s1)
	c.ObserveSync(s2)
	require.Equal(t, sync.Locked, c.State())

	// A third sync with identical metadata must not reset anything.
	s3 := frame.Sync{Sequence: 3, ConfirmationRequired: 2, Metadata: meta()}
	state := c.ObserveSync(s3)
	assert.Equal(t, sync.Locked, state)
}

func TestDirectMetaObservationInstallsMetadataImmediately(t *testing.T) {
	c := sync.New(0)
	assert.Nil(t, c.Metadata())
	c.ObserveMeta(meta())
	require.NotNil(t, c.Metadata())
	assert.Equal(t, sync.Idle, c.State())
	assert.True(t, c.CanAcceptSymbols())
}

func TestNoMetadataCannotAcceptSymbols(t *testing.T) {
	c := sync.New(0)
	assert.False(t, c.CanAcceptSymbols())
}

func TestWatchdogResyncsButKeepsMetadata(t *testing.T) {
	fakeNow := time.Now()
	c := sync.New(10 * time.Millisecond)
	// The controller's clock is not settable from outside the package:
	// reach lock through the normal path, then let real time pass by
	// sleeping past the (very short) watchdog interval.
	c.ObserveSync(frame.Sync{Sequence: 1, ConfirmationRequired: 2, Metadata: meta()})
	c.ObserveSync(frame.Sync{Sequence: 2, ConfirmationRequired: 2, Metadata: meta()})
	require.Equal(t, sync.Locked, c.State())

	time.Sleep(20 * time.Millisecond)
	resynced := c.CheckWatchdog()
	assert.True(t, resynced)
	assert.Equal(t, sync.Acquiring, c.State())
	assert.NotNil(t, c.Metadata(), "metadata must survive a watchdog resync")
	_ = fakeNow
}

func TestNoteSymbolAcceptedPreventsWatchdogResync(t *testing.T) {
	c := sync.New(30 * time.Millisecond)
	c.ObserveSync(frame.Sync{Sequence: 1, ConfirmationRequired: 2, Metadata: meta()})
	c.ObserveSync(frame.Sync{Sequence: 2, ConfirmationRequired: 2, Metadata: meta()})

	time.Sleep(15 * time.Millisecond)
	c.NoteSymbolAccepted()
	time.Sleep(15 * time.Millisecond)
	assert.False(t, c.CheckWatchdog())
	assert.Equal(t, sync.Locked, c.State())
}

func TestResetClearsEverything(t *testing.T) {
	c := sync.New(0)
	c.ObserveSync(frame.Sync{Sequence: 1, ConfirmationRequired: 2, Metadata: meta()})
	c.ObserveSync(frame.Sync{Sequence: 2, ConfirmationRequired: 2, Metadata: meta()})
	require.Equal(t, sync.Locked, c.State())

	c.Reset()
	assert.Equal(t, sync.Idle, c.State())
	assert.Nil(t, c.Metadata())
}

func TestMidStreamJoinLocksOnNextTwoReinserts(t *testing.T) {
	c := sync.New(0)
	// Receiver starts consuming at frame 20, past the preamble; with the
	// default preamble of 4 and re-insert interval of 16, the first two sync
	// re-inserts it actually sees are sequences 20 and 37.
	require.Equal(t, sync.Acquiring, c.ObserveSync(frame.Sync{Sequence: 20, ConfirmationRequired: 2, Metadata: meta()}))
	require.Equal(t, sync.Locked, c.ObserveSync(frame.Sync{Sequence: 37, ConfirmationRequired: 2, Metadata: meta()}))
}
