package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/studystim/studystim/internal/config"
	"github.com/studystim/studystim/internal/relay"
)

const shutdownTimeout = 5 * time.Second

// Server runs the relay hub behind an HTTP listener.
type Server struct {
	hub     *relay.Hub
	httpSrv *http.Server
}

// New builds a server from configuration. The registry is created here and
// handed to the hub; nothing else holds it.
func New(cfg *config.ServerConfig) *Server {
	hub := relay.NewHub(relay.NewRegistry(cfg.MaxRoomMembers))
	opts := relay.ClientOptions{
		MaxMessageSize: cfg.MaxMessageSize,
		Rate:           cfg.MessageRate,
		Burst:          cfg.MessageBurst,
	}

	return &Server{
		hub: hub,
		httpSrv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(hub, opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Hub exposes the relay hub.
func (s *Server) Hub() *relay.Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpSrv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay server listening", "addr", ln.Addr().String())
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stopping the hub closes every outbox, which ends the hijacked
	// websocket handlers that Shutdown does not track.
	stopHub()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
