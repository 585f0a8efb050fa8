// Package grpcapi serves the gRPC health service used by orchestrators
// and load balancers that speak grpc_health_v1.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-interview-voice-service/internal/observability"
	"ai-interview-voice-service/internal/observability/metrics"
)

// Service names reported by the health server in addition to "".
const (
	ConversationService = "interview.voice.ConversationService"
	RelayService        = "interview.voice.RealtimeRelay"
)

// Server wraps a grpc.Server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New builds the server. All services start NOT_SERVING until SetServing.
func New(m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: hs}
	s.SetServing(false)
	return s
}

// SetServing flips every reported service between SERVING and NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	for _, name := range []string{"", ConversationService, RelayService} {
		s.health.SetServingStatus(name, status)
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	log.Info().Msg("shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
