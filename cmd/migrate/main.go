package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"netscope/internal/infra"
	"netscope/internal/infrastructure/repository/postgres"
)

func main() {
	cfg := infra.LoadConfig()
	logger := infra.NewLogger(os.Stdout, "migrate", infra.LoggerOptions{Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn, err := postgres.BuildDatabaseDSN(cfg)
	if err != nil {
		logger.Fatalf(ctx, "failed to build database DSN: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(connectCtx, dsn)
	if err != nil {
		logger.Fatalf(ctx, "database connectivity check failed: %v", err)
	}
	defer db.Close()

	if err := postgres.ApplyMigrations(ctx, db, logger); err != nil {
		logger.Fatalf(ctx, "migrations failed: %v", err)
	}
	logger.Println(ctx, "migrations applied")
}
