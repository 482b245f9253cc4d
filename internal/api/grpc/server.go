// Package grpcapi serves gRPC health checks and reflection for the service.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"clinical-notes-service/internal/observability"
	"clinical-notes-service/internal/observability/metrics"
)

// ServiceName is the health-checked service name.
const ServiceName = "clinical.notes.PipelineService"

// Server wraps a gRPC server with health and reflection registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a gRPC server with logging and metrics interceptors.
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, h)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: h}
	s.SetServing(true)
	return s
}

// SetServing flips the health status of the server and ServiceName.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.grpc.Serve(lis)
}

// Stop marks the server not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.SetServing(false)
	s.grpc.GracefulStop()
}
