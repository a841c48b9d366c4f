package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/errors"
)

const readinessTimeout = 5 * time.Second

// Server is the HTTP API server.
type Server struct {
	addr       string
	mux        *http.ServeMux
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds the server with all routes registered.
func NewServer(port int, handlers *Handlers, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers)

	addr := fmt.Sprintf(":%d", port)
	return &Server{
		addr: addr,
		mux:  mux,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "api_server").Logger(),
	}
}

// Handler exposes the routed mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listener, serves in the background, and waits until the
// health endpoint answers or the readiness timeout passes.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to bind API listener", err).
			WithContext("addr", s.addr)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server stopped unexpectedly")
		}
	}()

	healthURL := fmt.Sprintf("http://%s/health", listener.Addr().String())
	deadline := time.Now().Add(readinessTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				s.logger.Info().Str("addr", listener.Addr().String()).Msg("API server ready")
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	return errors.New(errors.ErrCodeInternal, "API server did not become ready", nil).
		WithContext("addr", s.addr)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping API server")
	return s.httpServer.Shutdown(ctx)
}
