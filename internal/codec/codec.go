// Package codec serializes cache values into a versioned, checksummed,
// optionally compressed envelope suitable for crossing a BackingStore
// boundary.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ocx/coordination/internal/coreerrors"
)

// Compression identifies the algorithm applied to an EncodedData payload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLz4
	CompressionZstd
	CompressionSnappy
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLz4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// EncodedData is the at-rest envelope for a codec-encoded value.
type EncodedData struct {
	SchemaVersion   uint32
	Compression     Compression
	OriginalSize    uint64
	CompressedSize  uint64
	HasChecksum     bool
	Checksum        uint64
	Data            []byte
}

// CompressionRatio returns CompressedSize/OriginalSize, defined as 1.0 when
// OriginalSize is zero.
func (e EncodedData) CompressionRatio() float64 {
	if e.OriginalSize == 0 {
		return 1.0
	}
	return float64(e.CompressedSize) / float64(e.OriginalSize)
}

func computeChecksum(data []byte) uint64 {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return sum
}

// VerifyChecksum reports whether e.Checksum matches the bytes in e.Data.
// It returns true trivially when no checksum was recorded.
func (e EncodedData) VerifyChecksum() bool {
	if !e.HasChecksum {
		return true
	}
	return computeChecksum(e.Data) == e.Checksum
}

// Config controls a Codec's behavior.
type Config struct {
	SchemaVersion  uint32
	Compression    Compression
	EnableChecksum bool
}

// DefaultConfig matches the original implementation's defaults: schema
// version 1, no compression, checksums enabled.
func DefaultConfig() Config {
	return Config{
		SchemaVersion:  1,
		Compression:    CompressionNone,
		EnableChecksum: true,
	}
}

// Codec encodes and decodes values of type V through a JSON-serialize,
// compress, checksum pipeline.
type Codec[V any] struct {
	cfg Config
}

// New constructs a Codec with the given configuration.
func New[V any](cfg Config) *Codec[V] {
	return &Codec[V]{cfg: cfg}
}

// Encode serializes value, compresses it per the codec's configuration, and
// wraps the result in an EncodedData envelope.
func (c *Codec[V]) Encode(value V) (EncodedData, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return EncodedData{}, fmt.Errorf("codec: serialize: %w", err)
	}

	compressed, err := compress(c.cfg.Compression, raw)
	if err != nil {
		return EncodedData{}, fmt.Errorf("codec: compress: %w", err)
	}

	env := EncodedData{
		SchemaVersion:  c.cfg.SchemaVersion,
		Compression:    c.cfg.Compression,
		OriginalSize:   uint64(len(raw)),
		CompressedSize: uint64(len(compressed)),
		Data:           compressed,
	}
	if c.cfg.EnableChecksum {
		env.HasChecksum = true
		env.Checksum = computeChecksum(compressed)
	}
	return env, nil
}

// Decode reverses Encode: it verifies the checksum, decompresses, then
// deserializes into a value of type V.
func (c *Codec[V]) Decode(env EncodedData) (V, error) {
	var zero V

	if !env.VerifyChecksum() {
		return zero, fmt.Errorf("codec: checksum mismatch: %w", coreerrors.ErrCorrupt)
	}

	raw, err := decompress(env.Compression, env.Data)
	if err != nil {
		return zero, fmt.Errorf("codec: decompress: %w", coreerrors.ErrCorrupt)
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, fmt.Errorf("codec: deserialize: %w", coreerrors.ErrCorrupt)
	}
	return value, nil
}

func compress(alg Compression, raw []byte) ([]byte, error) {
	switch alg {
	case CompressionNone:
		return raw, nil
	case CompressionLz4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CompressionSnappy:
		return s2.EncodeSnappy(nil, raw), nil
	default:
		return nil, fmt.Errorf("unknown compression tag %d: %w", alg, coreerrors.ErrCorrupt)
	}
}

func decompress(alg Compression, data []byte) ([]byte, error) {
	switch alg {
	case CompressionNone:
		return data, nil
	case CompressionLz4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case CompressionSnappy:
		return s2.Decode(nil, data)
	default:
		return nil, fmt.Errorf("unknown compression tag %d", alg)
	}
}
