package observability

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
)

// healthPrefix marks probe traffic, which is counted but logged at trace level.
const healthPrefix = "/grpc.health.v1.Health/"

// observeCall counts a finished call and logs it with the caller's address.
func observeCall(ctx context.Context, m *metrics.Metrics, method, kind string, start time.Time, err error) {
	code := status.Code(err).String()
	m.RecordGRPCCall(method, code)

	logger := logging.WithComponent("grpc")
	ev := logger.Debug()
	switch {
	case strings.HasPrefix(method, healthPrefix):
		ev = logger.Trace()
	case err != nil:
		ev = logger.Warn().Err(err)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", time.Since(start)).
		Msg("gRPC call finished")
}

// UnaryServerInterceptor counts and logs unary calls.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(ctx, m, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor counts and logs streaming calls, such as health watches.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(ss.Context(), m, info.FullMethod, "stream", start, err)
		return err
	}
}
