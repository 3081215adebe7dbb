// Package opshttp exposes the ops surface: a health check, Prometheus
// metrics, and synchronous snapshot reads of the latest spatial/cyclic
// opportunity sets, behind a mux.Router with request-id, logging, and
// timeout middleware.
package opshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/publisher"
)

// Publisher is the read side the ops surface queries for snapshots.
type Publisher interface {
	FindSpatialNow() []model.OpportunitySpatial
	FindCyclicNow() []model.OpportunityCyclic
}

type requestIDKey struct{}

// Config holds the listener configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the default read/write/idle timeouts for addr; the
// address is used as given.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the ops HTTP surface: /healthz, /metrics, /opportunities/spatial,
// /opportunities/cyclic.
type Server struct {
	router *mux.Router
	server *http.Server
	log    zerolog.Logger
	config Config
}

// New checks the port is free, builds the router, and wires the handlers.
func New(config Config, pub Publisher, reg *metrics.Registry, log zerolog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("opshttp: address %s is busy or unavailable: %w", config.Addr, err)
	}
	listener.Close()

	s := &Server{router: mux.NewRouter(), log: log, config: config}
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(timeoutMiddleware)

	s.router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	if reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/opportunities/spatial", spatialHandler(pub)).Methods(http.MethodGet)
	s.router.HandleFunc("/opportunities/cyclic", cyclicHandler(pub)).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Start blocks serving until the listener is closed by Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.config.Addr).Msg("ops http server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("ops http request")
	})
}

func timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
}

func spatialHandler(pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(publisher.MarshalSpatial(pub.FindSpatialNow()))
	}
}

func cyclicHandler(pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(publisher.MarshalCyclic(pub.FindCyclicNow()))
	}
}
