package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/logging"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server runs a Hub behind the HTTP routes.
type Server struct {
	hub  *Hub
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg config.RelayConfig, log zerolog.Logger) *Server {
	hub := NewHub(log)
	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(hub, cfg),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: logging.Module(log, "relay"),
	}
}

// Handler exposes the routes, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	serverErr := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("relay listening")

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.log.Info().Msg("shutting down relay")
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
