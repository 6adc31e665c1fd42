package wire_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/coreerrors"
	"github.com/ocx/coordination/internal/wire"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := wire.NewFrame(wire.MessageTypeInvalidationEvent, []byte("hello invalidation"))
	encoded := wire.FrameEncode(f)

	decoded, err := wire.FrameDecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.Type, decoded.Type)
	assert.Equal(t, f.Payload, decoded.Payload)
	assert.Equal(t, wire.VersionMajor, decoded.VersionMajor)
}

func TestFrameDecodeRejectsBadChecksum(t *testing.T) {
	f := wire.NewFrame(wire.MessageTypeHeartbeat, []byte("payload"))
	encoded := wire.FrameEncode(f)
	encoded[len(encoded)-1] ^= 0xFF // corrupt the payload after checksum was computed

	_, err := wire.FrameDecode(encoded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrCorrupt))
}

func TestFrameDecodeRejectsIncompatibleMajorVersion(t *testing.T) {
	f := wire.NewFrame(wire.MessageTypeHeartbeat, []byte("x"))
	encoded := wire.FrameEncode(f)
	encoded[0] = wire.VersionMajor + 1

	_, err := wire.FrameDecode(encoded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrUnsupportedVersion))
}

func TestFrameDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := wire.FrameDecode([]byte{1, 0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrCorrupt))
}

func TestReadWriteFrameOverStream(t *testing.T) {
	var buf bytes.Buffer
	f1 := wire.NewFrame(wire.MessageTypeLockRequest, []byte("req"))
	f2 := wire.NewFrame(wire.MessageTypeLockResponse, []byte("resp"))

	require.NoError(t, wire.WriteFrame(&buf, f1))
	require.NoError(t, wire.WriteFrame(&buf, f2))

	got1, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("req"), got1.Payload)

	got2, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("resp"), got2.Payload)
}

func TestWriteFramesBatches(t *testing.T) {
	var buf bytes.Buffer
	frames := []*wire.Frame{
		wire.NewFrame(wire.MessageTypeInvalidationEvent, []byte("a")),
		wire.NewFrame(wire.MessageTypeInvalidationEvent, []byte("bb")),
		wire.NewFrame(wire.MessageTypeInvalidationEvent, []byte("ccc")),
	}
	require.NoError(t, wire.WriteFrames(&buf, frames))

	for _, want := range frames {
		got, err := wire.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Payload, got.Payload)
	}
}
