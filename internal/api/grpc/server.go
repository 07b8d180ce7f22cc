// Package grpcapi exposes the standard gRPC health service backed by the database check.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"netscope/internal/application/health"
	"netscope/internal/infra"
)

// ServiceName is the name reported to health probes alongside the empty overall name.
const ServiceName = "netscope"

const defaultShutdownTimeout = 10 * time.Second

// HealthChecker reports database liveness.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Server serves grpc.health.v1.Health.
type Server struct {
	grpcServer      *grpc.Server
	logger          *infra.Logger
	shutdownTimeout time.Duration
}

// NewServer builds the gRPC server with logging and metrics interceptors.
func NewServer(checker HealthChecker, logger *infra.Logger) (*Server, error) {
	if checker == nil {
		return nil, errors.New("grpc api: health checker is required")
	}

	metrics, err := serverMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger), metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(server, &healthServer{checker: checker})
	metrics.InitializeMetrics(server)

	return &Server{grpcServer: server, logger: logger, shutdownTimeout: defaultShutdownTimeout}, nil
}

func serverMetrics(registerer prometheus.Registerer) (*grpc_prometheus.ServerMetrics, error) {
	metrics := grpc_prometheus.NewServerMetrics()
	if err := registerer.Register(metrics); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*grpc_prometheus.ServerMetrics); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register grpc metrics: %w", err)
	}
	return metrics, nil
}

// Serve accepts connections on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()
	s.logger.Printf(ctx, "grpc server listening on %s", lis.Addr())

	select {
	case <-ctx.Done():
		s.GracefulStop()
		if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// GracefulStop waits for in-flight calls, forcing a stop after the shutdown timeout.
func (s *Server) GracefulStop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Println(context.Background(), "grpc server stopped")
	case <-time.After(s.shutdownTimeout):
		s.logger.Printf(context.Background(), "grpc graceful stop exceeded %s, forcing stop", s.shutdownTimeout)
		s.grpcServer.Stop()
	}
}

type healthServer struct {
	healthpb.UnimplementedHealthServer
	checker HealthChecker
}

func (h *healthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}

	servingStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if h.checker.Check(ctx).Healthy() {
		servingStatus = healthpb.HealthCheckResponse_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: servingStatus}, nil
}

func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Errorw(ctx, "grpc call failed", "method", info.FullMethod, "duration", duration.String(), "code", status.Code(err).String())
		} else {
			logger.Infow(ctx, "grpc call completed", "method", info.FullMethod, "duration", duration.String())
		}
		return resp, err
	}
}
