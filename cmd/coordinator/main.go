// Command coordinator is the coordination node's process entrypoint (C15):
// it loads configuration, constructs the cache/lock/invalidation/event-
// sourcing stack, serves the gRPC control plane and the /metrics and
// /healthz HTTP endpoints, and shuts down gracefully on SIGINT/SIGTERM.
// Grounded on the teacher's cmd/server/main.go wiring style (construct
// dependencies top-down, then Start/Serve), adapted for this module's
// config-driven, multi-listener process instead of the teacher's single
// REST gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/circuitbreaker"
	"github.com/ocx/coordination/internal/config"
	"github.com/ocx/coordination/internal/coreerrors"
	"github.com/ocx/coordination/internal/eventsource"
	"github.com/ocx/coordination/internal/invalidation"
	"github.com/ocx/coordination/internal/lock"
	"github.com/ocx/coordination/internal/metrics"
	"github.com/ocx/coordination/internal/rpc"
	"github.com/ocx/coordination/internal/store"
	"github.com/ocx/coordination/internal/strategy"
)

func main() {
	cfg := config.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("coordinator starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	backends := circuitbreaker.NewBackends()
	logger.Info("circuit breakers registered", "names", backends.Names())

	backing := store.NewRedisStore[string, []byte](
		store.NewGoRedisAdapter(redisClient),
		cfg.Redis.KeyPrefix,
		store.WithTTL[string, []byte](time.Duration(cfg.Cache.DefaultTTLSec)*time.Second),
		store.WithCircuitBreaker[string, []byte](backends.RedisStore),
	)

	multiTier := cache.New[string, []byte](cache.Config{
		L1Capacity:         cfg.Cache.L1Capacity,
		L2Capacity:         cfg.Cache.L2Capacity,
		L3Capacity:         cfg.Cache.L2Capacity,
		PromotionThreshold: 3,
		DemotionThreshold:  5 * time.Minute,
	})
	cacheAside := strategy.NewCacheAside[string, []byte](multiTier, backing)
	_ = cacheAside // exercised by strategy adapters' own tests; wired here for future request-path handlers

	bus := invalidation.NewBus[string]()
	tagInvalidator := invalidation.NewTagInvalidator[string, []byte](bus)
	patternInvalidator := invalidation.NewPatternInvalidator[string, []byte](func(k string) string { return k }, bus)
	redisBus := invalidation.NewRedisBus[string](
		invalidation.NewGoRedisPubSub(redisClient),
		cfg.Redis.KeyPrefix+"invalidation",
		invalidation.WithCircuitBreaker[string](backends.RedisBus),
	)
	unsubscribeRedis := redisBus.Subscribe(func(event invalidation.Event[string]) {
		bus.Publish(event)
	})
	defer unsubscribeRedis()

	tokens := lock.NewTokenCounter()
	lockCfg := lock.Config{
		LeaseDuration:  time.Duration(cfg.Lock.LeaseDurationMs) * time.Millisecond,
		DefaultTimeout: time.Duration(cfg.Lock.DefaultTimeoutMs) * time.Millisecond,
		PollInterval:   time.Duration(cfg.Lock.PollIntervalMs) * time.Millisecond,
	}
	mutex := lock.NewMutex[string](lockCfg, tokens)
	rwLock := lock.NewRwLock[string](lockCfg, tokens)
	deadlocks := lock.NewDeadlockDetector[string](time.Duration(cfg.Lock.DeadlockScanMs)*time.Millisecond, func(cycle []string) {
		logger.Warn("deadlock detected", "cycle", cycle)
		metricsRegistry.Lock.DeadlocksFound.Inc()
	})
	deadlocks.Start()
	defer deadlocks.Stop()

	eventStore := eventsource.NewInMemoryEventStore().WithMetrics(metricsRegistry.EventStore)
	checkpoints := eventsource.NewInMemoryCheckpointStore()
	projections := eventsource.NewProjectionManager(eventStore, checkpoints).
		WithCatchUpBatchSize(cfg.EventStore.ProjectionCatchUpBatchSize).
		WithLiveBatchSize(cfg.EventStore.ProjectionLiveBatchSize).
		WithLivePollInterval(time.Duration(cfg.EventStore.ProjectionLivePollMs) * time.Millisecond).
		WithMetrics(metricsRegistry.EventStore)
	if err := projections.Start(ctx); err != nil {
		logger.Error("projection manager failed to start", "error", err)
		os.Exit(1)
	}

	sagaStore := eventsource.NewInMemorySagaStore()
	sagaCoordinator := eventsource.NewSagaCoordinator(sagaStore).
		WithTimeoutCheckInterval(time.Duration(cfg.EventStore.SagaTimeoutScanSec) * time.Second).
		WithMetrics(metricsRegistry.EventStore)
	sagaCoordinator.StartTimeoutMonitor()
	defer sagaCoordinator.StopTimeoutMonitor()

	stopCacheStats := reportCacheStats(ctx, multiTier, metricsRegistry.Cache, 15*time.Second)
	defer stopCacheStats()

	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, logger)
	metricsSrv.RegisterHealthCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	metricsSrv.RegisterHealthCheck("circuit_breakers", func(ctx context.Context) error {
		if status, _ := backends.HealthStatus(); status != "healthy" {
			return fmt.Errorf("circuit breakers degraded")
		}
		return nil
	})

	lockBackend := rpc.FuncLockBackend{
		AcquireFunc: func(ctx context.Context, req rpc.LockRequest) (rpc.LockResponse, error) {
			timeout := time.Duration(req.TimeoutMs) * time.Millisecond
			if timeout <= 0 {
				timeout = rpc.DefaultLockRequestTimeout
			}
			mode := "read"
			if req.Write {
				mode = "write"
			}
			start := time.Now()
			if req.Write {
				token, err := mutex.Lock(ctx, req.Key, req.Owner, timeout)
				if err != nil {
					metricsRegistry.Lock.RecordAcquire(mode, acquireResult(err), time.Since(start))
					return rpc.LockResponse{}, err
				}
				metricsRegistry.Lock.RecordAcquire(mode, "acquired", time.Since(start))
				return rpc.LockResponse{Acquired: true, Token: uint64(token)}, nil
			}
			if err := rwLock.ReadLock(ctx, req.Key, req.Owner, timeout); err != nil {
				metricsRegistry.Lock.RecordAcquire(mode, acquireResult(err), time.Since(start))
				return rpc.LockResponse{}, err
			}
			metricsRegistry.Lock.RecordAcquire(mode, "acquired", time.Since(start))
			return rpc.LockResponse{Acquired: true}, nil
		},
		ReleaseFunc: func(ctx context.Context, req rpc.UnlockRequest) (rpc.UnlockResponse, error) {
			if req.Write {
				if err := mutex.Unlock(req.Key, req.Owner, lock.FencingToken(req.Token)); err != nil {
					return rpc.UnlockResponse{}, err
				}
				return rpc.UnlockResponse{Released: true}, nil
			}
			if err := rwLock.ReadUnlock(req.Key, req.Owner); err != nil {
				return rpc.UnlockResponse{}, err
			}
			return rpc.UnlockResponse{Released: true}, nil
		},
	}

	invalidationBackend := rpc.FuncInvalidationBackend{
		InvalidateKeyFunc: func(ctx context.Context, key string) (rpc.InvalidateResponse, error) {
			_, existed := tagInvalidator.Get(key)
			tagInvalidator.InvalidateKey(key)
			count := 0
			if existed {
				count = 1
			}
			return rpc.InvalidateResponse{Count: count}, nil
		},
		InvalidateTagFunc: func(ctx context.Context, tag string) (rpc.InvalidateResponse, error) {
			return rpc.InvalidateResponse{Count: tagInvalidator.InvalidateTag(tag)}, nil
		},
		InvalidatePatternFunc: func(ctx context.Context, pattern string) (rpc.InvalidateResponse, error) {
			count, err := patternInvalidator.InvalidatePattern(pattern)
			if err != nil {
				return rpc.InvalidateResponse{}, err
			}
			return rpc.InvalidateResponse{Count: count}, nil
		},
	}

	grpcServer := rpc.NewServer()
	rpc.RegisterLockServiceServer(grpcServer, lockBackend)
	rpc.RegisterInvalidationServiceServer(grpcServer, invalidationBackend)

	grpcAddr := ":7070"
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to bind gRPC listener", "addr", grpcAddr, "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC control plane listening", "addr", grpcAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- metricsSrv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	grpcServer.GracefulStop()
	stop()
	logger.Info("coordinator stopped")
}

// acquireResult classifies a failed lock acquisition for the result label
// on LockMetrics.AcquireTotal.
func acquireResult(err error) string {
	if errors.Is(err, coreerrors.ErrTimeout) {
		return "timeout"
	}
	return "denied"
}

// reportCacheStats polls the cache's cumulative counters and reports the
// deltas to cacheMetrics, since MultiTierCache exposes a running total
// rather than a per-event hook. It returns a stop func; the background
// goroutine exits once ctx is done or stop is called.
func reportCacheStats[K comparable, V any](ctx context.Context, c *cache.MultiTierCache[K, V], cacheMetrics *metrics.CacheMetrics, interval time.Duration) func() {
	loopCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last cache.Stats
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				cur := c.Stats()
				cacheMetrics.Hits.WithLabelValues("l1").Add(float64(cur.L1Hits - last.L1Hits))
				cacheMetrics.Hits.WithLabelValues("l2").Add(float64(cur.L2Hits - last.L2Hits))
				cacheMetrics.Hits.WithLabelValues("l3").Add(float64(cur.L3Hits - last.L3Hits))
				cacheMetrics.Misses.Add(float64(cur.Misses - last.Misses))
				cacheMetrics.Promotions.Add(float64(cur.Promotions - last.Promotions))
				cacheMetrics.Demotions.Add(float64(cur.Demotions - last.Demotions))
				cacheMetrics.RecordStats(cur.HitRate())
				last = cur
			}
		}
	}()
	return cancel
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
