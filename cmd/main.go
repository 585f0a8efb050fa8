package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "ai-interview-voice-service/internal/api/grpc"
	"ai-interview-voice-service/internal/app"
	"ai-interview-voice-service/internal/config"
	apihttp "ai-interview-voice-service/internal/http"
	"ai-interview-voice-service/internal/observability"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create application")
	}

	// Prometheus endpoints on their own port
	obs := observability.NewServer(cfg.Observability.MetricsAddr, nil, application.Ready)
	obs.Start()

	// gRPC health service
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for gRPC")
	}
	health := grpcapi.New(application.Metrics)
	go func() {
		if err := health.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve failed")
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}
	health.SetServing(true)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("AI Interview voice service started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	health.SetServing(false)
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	application.Shutdown(ctx)
	health.Stop()
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
}
