package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reel/internal/logging"
)

// HealthFunc reports daemon health; a non-nil error marks it unhealthy.
type HealthFunc func(ctx context.Context) error

// Handler returns the router serving /metrics and /healthz.
func Handler(m *Metrics, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	if reg := m.Registry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if health != nil {
			if err := health(req.Context()); err != nil {
				status = map[string]string{"status": "unhealthy", "error": err.Error()}
				code = http.StatusServiceUnavailable
			}
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
	return r
}

// Server serves the metrics handler until its context ends.
type Server struct {
	bind    string
	handler http.Handler
	logger  *slog.Logger
}

// NewServer builds a server for bind (host:port).
func NewServer(bind string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{bind: bind, handler: handler, logger: logging.NewComponentLogger(logger, "metrics")}
}

// Run listens on the bind address and shuts down gracefully when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.bind, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics endpoint listening", logging.String("bind", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics: %w", err)
		}
		<-errCh
		return nil
	}
}
