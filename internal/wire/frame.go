// Package wire implements the collaboration pipeline's frame envelope:
// a 3-byte version, 1-byte message type, 4-byte length, 4-byte CRC-32,
// then payload. Grounded on internal/protocol/frame.go's header
// marshal/unmarshal shape; the collaboration semantics riding on top of
// the frame are out of scope here, only the framing itself.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ocx/coordination/internal/coreerrors"
)

const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
	VersionPatch uint8 = 0
)

// HeaderSize is the fixed prefix before the payload: 3 version bytes, 1
// message-type byte, 4-byte length, 4-byte CRC-32.
const HeaderSize = 3 + 1 + 4 + 4

// MessageType identifies the payload's shape to the receiver.
type MessageType uint8

const (
	MessageTypeInvalidationEvent MessageType = 0x01
	MessageTypeLockRequest       MessageType = 0x02
	MessageTypeLockResponse      MessageType = 0x03
	MessageTypeHeartbeat         MessageType = 0x04
)

// Frame is one framed message on the wire.
type Frame struct {
	VersionMajor uint8
	VersionMinor uint8
	VersionPatch uint8
	Type         MessageType
	Payload      []byte
}

// NewFrame builds a frame at the current protocol version.
func NewFrame(msgType MessageType, payload []byte) *Frame {
	return &Frame{
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		VersionPatch: VersionPatch,
		Type:         msgType,
		Payload:      payload,
	}
}

// FrameEncode serializes a frame: version, type, length, CRC-32 of the
// payload, then the payload itself.
func FrameEncode(f *Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = f.VersionMajor
	buf[1] = f.VersionMinor
	buf[2] = f.VersionPatch
	buf[3] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Payload)))
	checksum := crc32.ChecksumIEEE(f.Payload)
	binary.BigEndian.PutUint32(buf[8:12], checksum)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// FrameDecode parses a frame, rejecting an incompatible major version or a
// CRC-32 mismatch.
func FrameDecode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("wire: frame header truncated (%d bytes, need %d): %w", len(data), HeaderSize, coreerrors.ErrCorrupt)
	}

	major, minor, patch := data[0], data[1], data[2]
	if major != VersionMajor {
		return nil, fmt.Errorf("wire: unsupported major version %d (expected %d): %w", major, VersionMajor, coreerrors.ErrUnsupportedVersion)
	}

	msgType := MessageType(data[3])
	length := binary.BigEndian.Uint32(data[4:8])
	wantChecksum := binary.BigEndian.Uint32(data[8:12])

	if uint32(len(data)-HeaderSize) < length {
		return nil, fmt.Errorf("wire: payload truncated (have %d, need %d): %w", len(data)-HeaderSize, length, coreerrors.ErrCorrupt)
	}

	payload := data[HeaderSize : HeaderSize+int(length)]
	gotChecksum := crc32.ChecksumIEEE(payload)
	if gotChecksum != wantChecksum {
		return nil, fmt.Errorf("wire: checksum mismatch (got %08x, want %08x): %w", gotChecksum, wantChecksum, coreerrors.ErrCorrupt)
	}

	return &Frame{
		VersionMajor: major,
		VersionMinor: minor,
		VersionPatch: patch,
		Type:         msgType,
		Payload:      append([]byte(nil), payload...),
	}, nil
}

// ReadFrame reads one frame from r, first decoding the fixed header to
// learn the payload length, then reading exactly that many payload bytes.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[4:8])

	full := make([]byte, HeaderSize+int(length))
	copy(full, header)
	if length > 0 {
		if _, err := io.ReadFull(r, full[HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return FrameDecode(full)
}

// WriteFrame encodes and writes a frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(FrameEncode(f))
	return err
}

// WriteFrames writes a sequence of frames back to back, useful for batched
// invalidation fan-out over one connection.
func WriteFrames(w io.Writer, frames []*Frame) error {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(FrameEncode(f))
	}
	_, err := w.Write(buf.Bytes())
	return err
}
