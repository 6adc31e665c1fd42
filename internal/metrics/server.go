package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a dependency the process relies on
// (Redis, the event store's backing database) is currently reachable.
// Implementations should be fast and non-blocking; Server calls every
// checker on each /healthz request.
type HealthChecker func(ctx context.Context) error

// Server exposes GET /metrics in Prometheus text format and GET /healthz
// liveness (C15), grounded on the teacher's internal/api/server.go mux
// setup but trimmed to these two operational endpoints since this
// module's control plane is the gRPC surface in internal/rpc, not REST.
type Server struct {
	addr     string
	checkers map[string]HealthChecker
	logger   *slog.Logger
}

// NewServer builds a metrics/health server listening on addr (e.g. ":9090").
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, checkers: make(map[string]HealthChecker), logger: logger}
}

// RegisterHealthCheck adds a named dependency check consulted by /healthz.
func (s *Server) RegisterHealthCheck(name string, check HealthChecker) {
	s.checkers[name] = check
}

// Handler returns the /metrics and /healthz router, exported so tests can
// drive it directly with httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthStatus{Status: "ok", Checks: make(map[string]string)}
	healthy := true
	for name, check := range s.checkers {
		if err := check(ctx); err != nil {
			healthy = false
			resp.Checks[name] = fmt.Sprintf("error: %v", err)
			continue
		}
		resp.Checks[name] = "ok"
	}

	if !healthy {
		resp.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
