// Package server exposes a running simulator over gRPC: the standard
// health service plus a read-only vessel listing.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/observability"
	"github.com/got-is-bad-at-git/Kerbalism/internal/sim"
)

// Source is the view of the simulator the server needs.
type Source interface {
	Running() bool
	NamedSnapshots() []sim.NamedSnapshot
}

// Option configures a Server.
type Option func(*Server)

// WithCollector records RPC counts and latencies.
func WithCollector(c *observability.RPCCollector) Option {
	return func(s *Server) { s.collector = c }
}

// WithPollInterval sets how often Watch samples the source.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.poll = d }
}

// Server wraps a grpc.Server serving health and vessel listings.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	source    Source
	collector *observability.RPCCollector
	poll      time.Duration
	log       logging.Logger
}

// New builds a server reading from src. Health starts NOT_SERVING until
// Watch observes the simulator running.
func New(src Source, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		health: health.NewServer(),
		source: src,
		poll:   250 * time.Millisecond,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}

	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if s.collector != nil {
		interceptors = append(interceptors, s.collector.UnaryServerInterceptor())
	}
	s.grpc = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&simulatorServiceDesc, &simulatorService{source: src})
	s.setServing(false)
	return s
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	s.log.Info(ctx, "gRPC server listening", logging.String("addr", lis.Addr().String()))

	go s.Watch(ctx)

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
		return err
	}
}

// Watch mirrors the source's running state into the health service until
// ctx is cancelled.
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	last := false
	for {
		running := s.source != nil && s.source.Running()
		if running != last {
			s.setServing(running)
			s.log.Debug(ctx, "health status changed", logging.Bool("serving", running))
			last = running
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
