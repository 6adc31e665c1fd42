package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// NewServer builds a *grpc.Server using the JSON codec instead of the
// usual generated Protobuf codec (see codec.go), plus any caller-supplied
// options (TLS credentials, interceptors).
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(Codec())}, opts...)
	return grpc.NewServer(opts...)
}

// Dial connects to a coordination node's control plane using the same
// JSON codec the server expects.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec())),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

// FuncLockBackend adapts plain functions to LockBackend, letting callers
// wire a *lock.DistributedMutex[string] or *lock.DistributedRwLock[string]
// without this package depending on the lock package's generic types.
type FuncLockBackend struct {
	AcquireFunc func(ctx context.Context, req LockRequest) (LockResponse, error)
	ReleaseFunc func(ctx context.Context, req UnlockRequest) (UnlockResponse, error)
}

func (f FuncLockBackend) Acquire(ctx context.Context, req LockRequest) (LockResponse, error) {
	return f.AcquireFunc(ctx, req)
}

func (f FuncLockBackend) Release(ctx context.Context, req UnlockRequest) (UnlockResponse, error) {
	return f.ReleaseFunc(ctx, req)
}

// FuncInvalidationBackend adapts plain functions to InvalidationBackend,
// letting callers wire a concrete *invalidation.TagInvalidator[K,V] /
// *invalidation.PatternInvalidator[K,V] without this package taking on
// their value type parameter.
type FuncInvalidationBackend struct {
	InvalidateKeyFunc     func(ctx context.Context, key string) (InvalidateResponse, error)
	InvalidateTagFunc     func(ctx context.Context, tag string) (InvalidateResponse, error)
	InvalidatePatternFunc func(ctx context.Context, pattern string) (InvalidateResponse, error)
}

func (f FuncInvalidationBackend) InvalidateKey(ctx context.Context, key string) (InvalidateResponse, error) {
	return f.InvalidateKeyFunc(ctx, key)
}

func (f FuncInvalidationBackend) InvalidateTag(ctx context.Context, tag string) (InvalidateResponse, error) {
	return f.InvalidateTagFunc(ctx, tag)
}

func (f FuncInvalidationBackend) InvalidatePattern(ctx context.Context, pattern string) (InvalidateResponse, error) {
	return f.InvalidatePatternFunc(ctx, pattern)
}

// DefaultLockRequestTimeout is used by callers that don't set TimeoutMs.
const DefaultLockRequestTimeout = 10 * time.Second
