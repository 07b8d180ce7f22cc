package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	grpcapi "netscope/internal/api/grpc"
	httpapi "netscope/internal/api/http"
	"netscope/internal/infra"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	logger := app.Logger
	defer func() {
		cleanup()
		logger.Println(context.Background(), "server stopped")
		_ = logger.Sync()
	}()

	infra.LogConfig(ctx, logger, cfg)

	metricsServer := infra.NewMetricsServer(cfg.MetricsPort)
	infra.StartMetricsServer(ctx, metricsServer, logger)

	httpServer := httpapi.NewServer(cfg.Port, app.Handler, logger)

	var grpcServer *grpcapi.Server
	var grpcListener net.Listener
	if cfg.GRPCPort != "" {
		grpcServer, err = grpcapi.NewServer(app.Health, logger)
		if err != nil {
			stop()
			logger.Fatalf(ctx, "failed to build gRPC server: %v", err)
		}
		grpcListener, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			stop()
			logger.Fatalf(ctx, "failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
		}
	}

	serverErrs := make(chan error, 2)
	var servers sync.WaitGroup

	servers.Add(1)
	go func() {
		defer servers.Done()
		if err := httpServer.ListenAndServe(ctx); err != nil {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcServer != nil {
		servers.Add(1)
		go func() {
			defer servers.Done()
			if err := grpcServer.Serve(ctx, grpcListener); err != nil {
				serverErrs <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Println(context.Background(), "shutdown signal received")
	case err := <-serverErrs:
		logger.Printf(context.Background(), "server error: %v", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf(shutdownCtx, "http server shutdown error: %v", err)
	} else {
		logger.Println(shutdownCtx, "http server closed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf(shutdownCtx, "metrics server shutdown error: %v", err)
		}
	}

	servers.Wait()
}
