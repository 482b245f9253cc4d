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

	grpcapi "clinical-notes-service/internal/api/grpc"
	"clinical-notes-service/internal/app"
	"clinical-notes-service/internal/config"
	apihttp "clinical-notes-service/internal/http"
	"clinical-notes-service/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := application.Build(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	// Observability: /metrics, /healthz, /readyz
	obs := observability.NewServer(cfg.Service.MetricsAddr, application.Registry, application.Ready)
	obs.Start()

	// gRPC health and reflection
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	grpcServer := grpcapi.New(application.Metrics)
	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("grpc serve failed")
		}
	}()

	// HTTP API
	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("Clinical notes service started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down servers")
	grpcServer.SetServing(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	grpcServer.Stop()
	application.Shutdown()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
}
