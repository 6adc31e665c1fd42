// Package coreerrors declares the shared error taxonomy used across the
// caching and coordination subsystem. Components wrap one of these sentinels
// with call-site context via fmt.Errorf("...: %w", err) so callers can test
// the kind with errors.Is regardless of which component raised it.
package coreerrors

import "errors"

var (
	// ErrNotFound indicates a key, stream, aggregate, saga, projection, or
	// checkpoint is absent.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates an append observed a stream version
	// different from the one it expected.
	ErrVersionConflict = errors.New("version conflict")

	// ErrCorrupt indicates a checksum mismatch, truncated envelope, or
	// unknown compression tag.
	ErrCorrupt = errors.New("corrupt data")

	// ErrUnsupportedVersion indicates a schema or protocol version outside
	// the set a decoder supports.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrTimeout indicates a lock acquisition or saga timed out.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidState indicates an operation that is not valid given the
	// current state: unlocking without ownership, renewing an expired
	// lease, resetting a running projection.
	ErrInvalidState = errors.New("invalid state")

	// ErrBackend indicates a transient upstream failure from a
	// BackingStore, CheckpointStore, or SagaStore.
	ErrBackend = errors.New("backend error")

	// ErrCapacity indicates a queue or backlog is exhausted: write-behind
	// queue, broadcast channel.
	ErrCapacity = errors.New("capacity exhausted")
)
