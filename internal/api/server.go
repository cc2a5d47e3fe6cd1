package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server hosts a Handler on an HTTP listener.
type Server struct {
	handler   *Handler
	server    *http.Server
	listener  net.Listener
	isRunning bool
	mu        sync.RWMutex
}

// NewServer wires the handler routes into an HTTP server.
func NewServer(handler *Handler, cfg ServerConfig) *Server {
	r := mux.NewRouter()
	handler.RegisterRoutes(r)

	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start begins listening and serves in the background. It returns once the
// listener is bound; serve errors are delivered on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil, fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("address", ln.Addr().String()).Msg("Starting prediction server")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Prediction server failed")
			errs <- err
		}
		close(errs)
	}()

	s.isRunning = true
	return errs, nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop closes open streams and shuts the server down, waiting for
// in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.handler.CloseStreams()
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown prediction server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Prediction server stopped")
	return nil
}
