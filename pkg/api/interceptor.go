package api

import (
	"context"
	"strings"

	"github.com/cuemby/mcci/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// methodName extracts the short method name from a full gRPC method path
// (e.g., "/mcci.Distributor/Request" -> "Request").
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}

func observe(logger zerolog.Logger, fullMethod string, timer *metrics.Timer, err error) {
	method := methodName(fullMethod)
	code := status.Code(err)
	timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	metrics.APIRequestsTotal.WithLabelValues(method, code.String()).Inc()

	ev := logger.Debug()
	if code != codes.OK && code != codes.Canceled {
		ev = logger.Warn().Err(err)
	}
	ev.Str("method", method).Str("code", code.String()).Dur("duration", timer.Duration()).Msg("API call")
}

// UnaryInterceptor records metrics and a log line for every unary call.
func UnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)
		observe(logger, info.FullMethod, timer, err)
		return resp, err
	}
}

// StreamInterceptor records metrics and a log line when a stream ends.
func StreamInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		timer := metrics.NewTimer()
		err := handler(srv, ss)
		observe(logger, info.FullMethod, timer, err)
		return err
	}
}

// ReadOnlyInterceptor rejects calls that publish values. Subscribing,
// attaching and reading stats remain allowed.
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(codes.PermissionDenied, "%s not allowed on a read-only listener", methodName(info.FullMethod))
		}
		return handler(ctx, req)
	}
}

func isReadOnlyMethod(fullMethod string) bool {
	switch fullMethod {
	case MethodRequest, MethodStats, MethodAttach:
		return true
	}
	return false
}
