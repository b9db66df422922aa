// Package health exposes daemon and mount-link status over the standard gRPC
// health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceDaemon is SERVING while the daemon accepts clients.
	ServiceDaemon = "vegad"
	// ServiceMount is SERVING while the worker holds a live mount link.
	ServiceMount = "vegad.mount"

	defaultRefresh = time.Second
)

// Server publishes health status until its context ends.
type Server struct {
	logger  *slog.Logger
	mountUp func() bool
	refresh time.Duration

	grpc   *grpc.Server
	health *health.Server
}

// NewServer builds a health server. mountUp is polled every refresh interval.
func NewServer(logger *slog.Logger, mountUp func() bool, refresh time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if mountUp == nil {
		mountUp = func() bool { return false }
	}
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		logger:  logger,
		mountUp: mountUp,
		refresh: refresh,
		grpc:    gs,
		health:  hs,
	}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.health.SetServingStatus(ServiceDaemon, healthpb.HealthCheckResponse_SERVING)
	s.publishMount()

	done := make(chan struct{})
	defer close(done)
	go s.watch(ctx, done)

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(listener) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve health: %w", err)
	}
}

func (s *Server) watch(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.publishMount()
		}
	}
}

func (s *Server) publishMount() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.mountUp() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceMount, status)
}
