// Package server exposes a [spelling.Corrector] over HTTP.
//
// Routes:
//
//	POST   /v1/correct          correct one sentence
//	POST   /v1/correct/batch    correct many sentences, order preserved
//	GET    /v1/cache            list learned corrections
//	DELETE /v1/cache            forget every learned correction
//	DELETE /v1/cache/{word}     forget one learned correction
//	GET    /v1/live             WebSocket: one result frame per sentence frame
//	GET    /healthz, /readyz    liveness and readiness
//	GET    /metrics             Prometheus scrape endpoint (when enabled)
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/phonospell/internal/health"
	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling"
)

const (
	defaultMaxSentenceLen  = 4096
	defaultMaxBatchSize    = 256
	defaultShutdownTimeout = 15 * time.Second
)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMaxSentenceLen caps the accepted sentence length in bytes.
// Default: 4096.
func WithMaxSentenceLen(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSentenceLen = n
		}
	}
}

// WithMaxBatchSize caps the number of sentences per batch request.
// Default: 256.
func WithMaxBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithBatchParallelism bounds concurrent corrections within one batch.
// Default: GOMAXPROCS.
func WithBatchParallelism(n int) Option {
	return func(s *Server) {
		s.parallelism = n
	}
}

// WithHealth serves h on /healthz and /readyz. Default: a handler without
// readiness checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.health = h
		}
	}
}

// WithMetricsHandler serves h on /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithMetrics records HTTP and live-session metrics to m.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown in [Server.ListenAndServe].
// Default: 15s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server is the HTTP front end of the correction pipeline.
type Server struct {
	corrector       *spelling.Corrector
	health          *health.Handler
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	maxSentenceLen  int
	maxBatchSize    int
	parallelism     int
	shutdownTimeout time.Duration

	handler http.Handler
}

// New returns a [Server] that serves c.
func New(c *spelling.Corrector, opts ...Option) *Server {
	s := &Server{
		corrector:       c,
		health:          health.New(),
		metrics:         observe.DefaultMetrics(),
		maxSentenceLen:  defaultMaxSentenceLen,
		maxBatchSize:    defaultMaxBatchSize,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/correct", s.handleCorrect)
	mux.HandleFunc("POST /v1/correct/batch", s.handleBatch)
	mux.HandleFunc("GET /v1/cache", s.handleCacheList)
	mux.HandleFunc("DELETE /v1/cache", s.handleCacheClear)
	mux.HandleFunc("DELETE /v1/cache/{word}", s.handleCacheDelete)
	mux.HandleFunc("GET /v1/live", s.handleLive)
	s.health.Register(mux)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. certFile and keyFile enable TLS when both are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %q: %w", addr, err)
	}
	return s.Serve(ctx, ln, certFile, keyFile)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", ln.Addr().String(), "tls", certFile != "")
		if certFile != "" && keyFile != "" {
			errCh <- srv.ServeTLS(ln, certFile, keyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}
