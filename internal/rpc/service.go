// Package rpc exposes the coordination node's lock and cache-invalidation
// control plane over gRPC for out-of-process callers (C15), grounded on
// the teacher's internal/plan/grpc_handler.go service-registration shape.
package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// LockRequest asks to acquire a distributed lock on Key for Owner.
type LockRequest struct {
	Key      string
	Owner    string
	TTLMs    int64
	Write    bool // false = shared/read lock, true = exclusive/write lock
	TimeoutMs int64
}

// LockResponse carries the fencing token on success.
type LockResponse struct {
	Acquired bool
	Token    uint64
	Error    string
}

// UnlockRequest releases a previously acquired lock.
type UnlockRequest struct {
	Key   string
	Owner string
	Token uint64
	Write bool
}

// UnlockResponse acknowledges (or reports failure of) a release.
type UnlockResponse struct {
	Released bool
	Error    string
}

// InvalidateKeyRequest invalidates one cache key.
type InvalidateKeyRequest struct {
	Key string
}

// InvalidateTagRequest invalidates every entry carrying Tag.
type InvalidateTagRequest struct {
	Tag string
}

// InvalidatePatternRequest invalidates every key matching a glob Pattern.
type InvalidatePatternRequest struct {
	Pattern string
}

// InvalidateResponse reports how many entries were removed.
type InvalidateResponse struct {
	Count int
	Error string
}

// LockBackend is the lock subsystem surface the control plane drives.
// Implementations wrap *lock.DistributedMutex[string] /
// *lock.DistributedRwLock[string]; the interface exists so this package
// never takes a dependency on a specific key type.
type LockBackend interface {
	Acquire(ctx context.Context, req LockRequest) (LockResponse, error)
	Release(ctx context.Context, req UnlockRequest) (UnlockResponse, error)
}

// InvalidationBackend is the invalidation fabric surface the control
// plane drives.
type InvalidationBackend interface {
	InvalidateKey(ctx context.Context, key string) (InvalidateResponse, error)
	InvalidateTag(ctx context.Context, tag string) (InvalidateResponse, error)
	InvalidatePattern(ctx context.Context, pattern string) (InvalidateResponse, error)
}

// lockServer adapts a LockBackend to a grpc.ServiceDesc.
type lockServer struct {
	backend LockBackend
}

func (s *lockServer) acquire(ctx context.Context, req *LockRequest) (*LockResponse, error) {
	resp, err := s.backend.Acquire(ctx, *req)
	if err != nil {
		return &LockResponse{Error: err.Error()}, nil
	}
	return &resp, nil
}

func (s *lockServer) release(ctx context.Context, req *UnlockRequest) (*UnlockResponse, error) {
	resp, err := s.backend.Release(ctx, *req)
	if err != nil {
		return &UnlockResponse{Error: err.Error()}, nil
	}
	return &resp, nil
}

// invalidationServer adapts an InvalidationBackend to a grpc.ServiceDesc.
type invalidationServer struct {
	backend InvalidationBackend
}

func (s *invalidationServer) invalidateKey(ctx context.Context, req *InvalidateKeyRequest) (*InvalidateResponse, error) {
	resp, err := s.backend.InvalidateKey(ctx, req.Key)
	if err != nil {
		return &InvalidateResponse{Error: err.Error()}, nil
	}
	return &resp, nil
}

func (s *invalidationServer) invalidateTag(ctx context.Context, req *InvalidateTagRequest) (*InvalidateResponse, error) {
	resp, err := s.backend.InvalidateTag(ctx, req.Tag)
	if err != nil {
		return &InvalidateResponse{Error: err.Error()}, nil
	}
	return &resp, nil
}

func (s *invalidationServer) invalidatePattern(ctx context.Context, req *InvalidatePatternRequest) (*InvalidateResponse, error) {
	resp, err := s.backend.InvalidatePattern(ctx, req.Pattern)
	if err != nil {
		return &InvalidateResponse{Error: err.Error()}, nil
	}
	return &resp, nil
}

func unaryHandler[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// RegisterLockServiceServer wires a LockBackend into grpcServer.
func RegisterLockServiceServer(grpcServer *grpc.Server, backend LockBackend) {
	s := &lockServer{backend: backend}
	grpcServer.RegisterService(&grpc.ServiceDesc{
		ServiceName: "ocx.coordination.LockService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Acquire", Handler: unaryHandler(s.acquire)},
			{MethodName: "Release", Handler: unaryHandler(s.release)},
		},
		Metadata: "internal/rpc/service.go",
	}, s)
}

// RegisterInvalidationServiceServer wires an InvalidationBackend into grpcServer.
func RegisterInvalidationServiceServer(grpcServer *grpc.Server, backend InvalidationBackend) {
	s := &invalidationServer{backend: backend}
	grpcServer.RegisterService(&grpc.ServiceDesc{
		ServiceName: "ocx.coordination.InvalidationService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "InvalidateKey", Handler: unaryHandler(s.invalidateKey)},
			{MethodName: "InvalidateTag", Handler: unaryHandler(s.invalidateTag)},
			{MethodName: "InvalidatePattern", Handler: unaryHandler(s.invalidatePattern)},
		},
		Metadata: "internal/rpc/service.go",
	}, s)
}

// LockServiceClient calls the LockService over an existing connection.
type LockServiceClient struct {
	cc *grpc.ClientConn
}

func NewLockServiceClient(cc *grpc.ClientConn) *LockServiceClient {
	return &LockServiceClient{cc: cc}
}

func (c *LockServiceClient) Acquire(ctx context.Context, req LockRequest) (*LockResponse, error) {
	resp := new(LockResponse)
	if err := c.cc.Invoke(ctx, "/ocx.coordination.LockService/Acquire", &req, resp); err != nil {
		return nil, fmt.Errorf("rpc: lock acquire: %w", err)
	}
	return resp, nil
}

func (c *LockServiceClient) Release(ctx context.Context, req UnlockRequest) (*UnlockResponse, error) {
	resp := new(UnlockResponse)
	if err := c.cc.Invoke(ctx, "/ocx.coordination.LockService/Release", &req, resp); err != nil {
		return nil, fmt.Errorf("rpc: lock release: %w", err)
	}
	return resp, nil
}

// InvalidationServiceClient calls the InvalidationService over an existing connection.
type InvalidationServiceClient struct {
	cc *grpc.ClientConn
}

func NewInvalidationServiceClient(cc *grpc.ClientConn) *InvalidationServiceClient {
	return &InvalidationServiceClient{cc: cc}
}

func (c *InvalidationServiceClient) InvalidateKey(ctx context.Context, key string) (*InvalidateResponse, error) {
	resp := new(InvalidateResponse)
	req := &InvalidateKeyRequest{Key: key}
	if err := c.cc.Invoke(ctx, "/ocx.coordination.InvalidationService/InvalidateKey", req, resp); err != nil {
		return nil, fmt.Errorf("rpc: invalidate key: %w", err)
	}
	return resp, nil
}

func (c *InvalidationServiceClient) InvalidateTag(ctx context.Context, tag string) (*InvalidateResponse, error) {
	resp := new(InvalidateResponse)
	req := &InvalidateTagRequest{Tag: tag}
	if err := c.cc.Invoke(ctx, "/ocx.coordination.InvalidationService/InvalidateTag", req, resp); err != nil {
		return nil, fmt.Errorf("rpc: invalidate tag: %w", err)
	}
	return resp, nil
}

func (c *InvalidationServiceClient) InvalidatePattern(ctx context.Context, pattern string) (*InvalidateResponse, error) {
	resp := new(InvalidateResponse)
	req := &InvalidatePatternRequest{Pattern: pattern}
	if err := c.cc.Invoke(ctx, "/ocx.coordination.InvalidationService/InvalidatePattern", req, resp); err != nil {
		return nil, fmt.Errorf("rpc: invalidate pattern: %w", err)
	}
	return resp, nil
}
