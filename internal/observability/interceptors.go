// Package observability provides the metrics HTTP server and gRPC interceptors.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
)

// callObserver records every gRPC call served by the health endpoint.
// Successful and client-cancelled calls log at debug, others at warn.
type callObserver struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func newCallObserver(m *metrics.Metrics) *callObserver {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &callObserver{metrics: m, logger: logging.WithComponent("grpc")}
}

func (o *callObserver) observe(method, kind string, started time.Time, err error) {
	elapsed := time.Since(started)
	code := status.Code(err)
	o.metrics.RecordGRPCCall(method, code.String(), elapsed.Seconds())

	o.logger.WithLevel(callLevel(code)).
		Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", elapsed).
		Msg("gRPC call finished")
}

// callLevel maps a status code to the log level of its completion line.
func callLevel(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return zerolog.DebugLevel
	default:
		return zerolog.WarnLevel
	}
}

// UnaryServerInterceptor records latency and status of unary calls.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	o := newCallObserver(m)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		o.observe(info.FullMethod, "unary", started, err)
		return resp, err
	}
}

// StreamServerInterceptor records latency and status of streams such as
// health Watch. The call is recorded when the stream ends.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	o := newCallObserver(m)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		started := time.Now()
		err := handler(srv, ss)
		o.observe(info.FullMethod, "stream", started, err)
		return err
	}
}
