// Package httpapi serves Clawstr listings as JSON.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandwichfarm/clawrank/internal/config"
	"github.com/sandwichfarm/clawrank/internal/feed"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

const requestIDHeader = "X-Request-Id"

// Server is the HTTP API in front of a feed.Service
type Server struct {
	cfg       *config.Server
	service   *feed.Service
	refresher *feed.ActivityRefresher
	relay     http.Handler
	diag      *ops.DiagnosticsCollector
	logger    *ops.Logger

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// Option configures optional parts of the server
type Option func(*Server)

// WithRefresher answers /api/zaps/recent from the refresher's snapshot when it matches the request
func WithRefresher(r *feed.ActivityRefresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithRelay mounts a Nostr relay handler at /relay
func WithRelay(h http.Handler) Option {
	return func(s *Server) { s.relay = h }
}

// WithDiagnostics exposes the collector's report at /api/status
func WithDiagnostics(d *ops.DiagnosticsCollector) Option {
	return func(s *Server) { s.diag = d }
}

// New creates the API server
func New(cfg *config.Server, service *feed.Service, logger *ops.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = ops.Default()
	}

	s := &Server{
		cfg:     cfg,
		service: service,
		logger:  logger.WithComponent("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with request logging and panic recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/popular", s.handlePopular)
	mux.HandleFunc("GET /api/recent", s.handleRecent)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/communities", s.handleCommunities)
	mux.HandleFunc("GET /api/communities/{name}", s.handleCommunity)
	mux.HandleFunc("GET /api/zaps/recent", s.handleRecentZaps)
	mux.HandleFunc("GET /api/zaps/largest", s.handleLargestZaps)
	mux.HandleFunc("GET /api/posts/{id}", s.handlePost)
	mux.HandleFunc("GET /api/posts/{id}/thread", s.handleThread)
	mux.HandleFunc("GET /api/authors/{pubkey}/posts", s.handleAuthorPosts)
	if s.diag != nil {
		mux.HandleFunc("GET /api/status", s.handleStatus)
	}
	if s.relay != nil {
		mux.Handle("/relay", s.relay)
	}

	return s.withLogging(s.withRecovery(mux))
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP API: %w", err)
	}
	s.listener = listener
	s.logger.Info("http api listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting for in-flight requests until ctx is done
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.LogProtocolRequest(requestID, r.URL.Path, sw.status, time.Since(start))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.LogPanic(rec, string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
