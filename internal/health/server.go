// Package health exposes the HTTP probe and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"astro_bot/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// Checker is anything that can be pinged, such as the Mongo manager.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server hosts /healthz and /metrics and owns the underlying HTTP server.
type Server struct {
	server *http.Server
	logger *logrus.Entry
	mongo  Checker
	redis  Checker
}

// Option customizes a Server.
type Option func(*Server)

// WithRedis adds a redis probe to /healthz. Without it redis is not reported.
func WithRedis(checker Checker) Option {
	return func(s *Server) {
		s.redis = checker
	}
}

type response struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
	Redis  string `json:"redis,omitempty"`
}

// NewServer constructs a server on port exposing GET /healthz and, when
// gatherer is non-nil, GET /metrics.
func NewServer(port int, mongo Checker, gatherer prometheus.Gatherer, logger *logrus.Entry, opts ...Option) *Server {
	srv := &Server{
		logger: logging.Component(logger, "health"),
		mongo:  mongo,
	}
	for _, opt := range opts {
		opt(srv)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}

	if s.mongo == nil {
		resp.Mongo = "error"
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
	} else if err := s.ping(r.Context(), s.mongo); err != nil {
		resp.Mongo = "error"
		s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
	}

	if s.redis != nil {
		if err := s.ping(r.Context(), s.redis); err != nil {
			resp.Redis = "error"
			s.logger.WithField("event", "health_redis_error").WithError(err).Warn("redis ping failed during health check")
		}
	}

	if resp.Mongo != "" || resp.Redis != "" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) ping(ctx context.Context, checker Checker) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return checker.Ping(ctx)
}
