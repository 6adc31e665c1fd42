package codec

import (
	"fmt"

	"github.com/ocx/coordination/internal/coreerrors"
)

// versionedEntry pairs a schema version with the codec that understands it.
type versionedEntry[V any] struct {
	version uint32
	codec   *Codec[V]
}

// VersionedCodec dispatches Decode calls to the codec registered for an
// envelope's schema version, and Encode calls to the most recently
// registered (current) codec.
type VersionedCodec[V any] struct {
	entries []versionedEntry[V]
}

// NewVersioned constructs an empty VersionedCodec. Register at least one
// version with Register before using it.
func NewVersioned[V any]() *VersionedCodec[V] {
	return &VersionedCodec[V]{}
}

// Register adds a codec for the given schema version. The most recently
// registered version becomes the one Encode uses.
func (vc *VersionedCodec[V]) Register(version uint32, c *Codec[V]) {
	vc.entries = append(vc.entries, versionedEntry[V]{version: version, codec: c})
}

// Encode uses the most recently registered codec.
func (vc *VersionedCodec[V]) Encode(value V) (EncodedData, error) {
	if len(vc.entries) == 0 {
		return EncodedData{}, fmt.Errorf("versioned codec: no codecs registered: %w", coreerrors.ErrUnsupportedVersion)
	}
	return vc.entries[len(vc.entries)-1].codec.Encode(value)
}

// Decode dispatches by env.SchemaVersion.
func (vc *VersionedCodec[V]) Decode(env EncodedData) (V, error) {
	var zero V
	for _, e := range vc.entries {
		if e.version == env.SchemaVersion {
			return e.codec.Decode(env)
		}
	}
	return zero, fmt.Errorf("versioned codec: schema version %d: %w", env.SchemaVersion, coreerrors.ErrUnsupportedVersion)
}
