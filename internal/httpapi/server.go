package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flor3z/payout-bot/internal/logging"
)

// Server wraps http.Server with the API router
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a Server listening on addr once Serve is called
func NewServer(addr string, readTimeout time.Duration, ledger Reader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(ledger, opts),
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
		},
		logger: logging.Named(opts.Logger, "httpapi"),
	}
}

// Serve blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	s.logger.Info("HTTP API listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
