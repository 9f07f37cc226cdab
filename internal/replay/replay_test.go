package replay_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
	"github.com/rootnegativeone/tightbeam/internal/degree"
	"github.com/rootnegativeone/tightbeam/internal/frame"
	"github.com/rootnegativeone/tightbeam/internal/replay"
)

func sampleFrames() []frame.Frame {
	meta := frame.Metadata{BlockSize: 16, K: 3, OrigLen: 40, IntegrityCheck: "deadbeef"}
	return []frame.Frame{
		frame.NewSync(frame.Sync{Sequence: 0, Ordinal: 1, Total: 2, ConfirmationRequired: 2, Metadata: meta}),
		frame.NewMeta(meta),
		frame.NewSymbol(frame.SymbolFrame{Sequence: 2, Indices: []int{0}, Payload: make([]byte, 16)}),
		frame.NewSymbol(frame.SymbolFrame{Sequence: 3, Indices: []int{0, 2}, Payload: make([]byte, 16)}),
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	id := uuid.New()
	frames := sampleFrames()

	cap1, err := replay.NewCapture(id, 42, decoder.AlgorithmSHA256, degree.DefaultParams(), frames, 1000)
	require.NoError(t, err)

	data, err := replay.Marshal(cap1)
	require.NoError(t, err)

	cap2, err := replay.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, id, cap2.SessionID)
	assert.Equal(t, int64(42), cap2.Seed)
	assert.Equal(t, decoder.AlgorithmSHA256, cap2.IntegrityAlgorithm)

	roundTripped, err := cap2.Frames()
	require.NoError(t, err)
	require.Len(t, roundTripped, len(frames))
	for i, f := range frames {
		assert.Equal(t, f.Kind, roundTripped[i].Kind)
	}
	assert.Equal(t, frames[2].Symbol.Indices, roundTripped[2].Symbol.Indices)
	assert.Equal(t, frames[3].Symbol.Indices, roundTripped[3].Symbol.Indices)
}

func TestUnmarshalRejectsUnknownVersion(t *testing.T) {
	id := uuid.New()
	cap1, err := replay.NewCapture(id, 1, decoder.AlgorithmSHA256, degree.DefaultParams(), sampleFrames(), 0)
	require.NoError(t, err)
	cap1.Version = 99

	data, err := replay.Marshal(cap1)
	require.NoError(t, err)

	_, err = replay.Unmarshal(data)
	assert.Error(t, err)
}
