package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"graphscore/internal/boundary"
	"graphscore/internal/config"
	"graphscore/internal/logger"
	"graphscore/internal/metrics"
	"graphscore/internal/scoring"
	"graphscore/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	sessionID, err := logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		if err := metrics.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, server.ServiceVersion); err != nil {
			logger.LogError(ctx, "", "server", "tracing_init_failed", err, nil)
		} else {
			defer metrics.ShutdownTracing()
		}
	}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	client := boundary.NewClient(scoring.NewEngine(cfg.ScoringOptions()), cfg.ClientOptions())
	if err := client.CheckEnvironment(); err != nil {
		// keep serving; health reports NOT_SERVING and score requests fail fast
		logger.LogError(ctx, "", "server", "environment_unsupported", err, nil)
	}

	srv := server.New(client, server.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		RequestTimeout: cfg.RequestTimeout(),
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddress,
		Handler: srv.Handler(),
	}

	grpcServer := grpc.NewServer()
	srv.RegisterGRPC(grpcServer)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddress, err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.LogEvent(ctx, "", "server", "server_started", map[string]string{
		"http_address": cfg.Server.HTTPAddress,
		"grpc_address": cfg.Server.GRPCAddress,
		"session_id":   sessionID,
		"environment":  cfg.Environment,
	})

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
	case runErr = <-errCh:
	}

	logger.LogEvent(ctx, "", "server", "server_stopping", nil)
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.LogError(ctx, "", "server", "http_shutdown_failed", err, nil)
	}
	grpcServer.GracefulStop()

	return runErr
}
