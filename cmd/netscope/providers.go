package main

import (
	"context"
	"io"
	"net/http"
	"net/url"

	httpapi "netscope/internal/api/http"
	"netscope/internal/application/aggregator"
	"netscope/internal/application/health"
	"netscope/internal/application/telemetry"
	"netscope/internal/domain"
	"netscope/internal/infra"
	"netscope/internal/infrastructure/broker"
	"netscope/internal/infrastructure/repository/postgres"
	"netscope/internal/pkg/locations"
	"netscope/internal/pkg/redact"
)

func provideConfig() infra.Config {
	return infra.LoadConfig()
}

func provideServiceName() string {
	return "netscope"
}

func provideLogger(out io.Writer, serviceName string, cfg infra.Config) *infra.Logger {
	return infra.NewLogger(out, serviceName, infra.LoggerOptions{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
}

// provideRepository connects with retries; failure after the last attempt aborts startup.
func provideRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*postgres.Repository, func(), error) {
	repo, err := postgres.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Printf(context.Background(), "database pool close error: %v", err)
		}
	}
	return repo, cleanup, nil
}

func provideCatalogue(cfg infra.Config) (*locations.Catalogue, error) {
	return locations.Load(cfg.LocationsFile)
}

func provideRedactor(cfg infra.Config) redact.Redactor {
	return redact.New(cfg.RedactIPAddresses)
}

// providePublisher returns nil when no broker is configured or reachable; publishing is optional.
func providePublisher(ctx context.Context, cfg infra.Config, logger *infra.Logger) (domain.ObservationPublisher, func(), error) {
	noop := func() {}
	if cfg.AMQPURL == "" {
		return nil, noop, nil
	}

	publisher, err := broker.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		logger.Printf(ctx, "observation publishing disabled: %v", err)
		return nil, noop, nil
	}
	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logger.Printf(context.Background(), "publisher close error: %v", err)
		}
	}
	return publisher, cleanup, nil
}

func provideTelemetryService(repo *postgres.Repository, publisher domain.ObservationPublisher, redactor redact.Redactor, logger *infra.Logger) (*telemetry.Service, error) {
	return telemetry.NewService(repo, publisher, redactor, logger)
}

func provideAggregatorService(repo *postgres.Repository, catalogue *locations.Catalogue, logger *infra.Logger) (*aggregator.Service, error) {
	return aggregator.New(repo, catalogue, logger)
}

func provideHealthService(repo *postgres.Repository, cfg infra.Config, logger *infra.Logger) (*health.Service, error) {
	return health.NewService(repo, cfg.IsDevelopment(), logger)
}

func provideBackend(cfg infra.Config) (*url.URL, error) {
	return httpapi.BackendURL(cfg.LibrespeedHost, cfg.LibrespeedPort)
}

func provideRouter(
	cfg infra.Config,
	logger *infra.Logger,
	repo *postgres.Repository,
	ingester *telemetry.Service,
	averages *aggregator.Service,
	checker *health.Service,
	backend *url.URL,
) (http.Handler, error) {
	return httpapi.NewRouter(httpapi.Dependencies{
		Telemetry:  ingester,
		Aggregator: averages,
		Health:     checker,
		Pinger:     repo,
		Logger:     logger,
		Config:     cfg,
		Backend:    backend,
	})
}
