//go:build wireinject

package main

import (
	"context"
	"io"

	"github.com/google/wire"
)

func initApplication(ctx context.Context, out io.Writer) (*application, func(), error) {
	wire.Build(
		provideConfig,
		provideServiceName,
		provideLogger,
		provideRepository,
		provideCatalogue,
		provideRedactor,
		providePublisher,
		provideTelemetryService,
		provideAggregatorService,
		provideHealthService,
		provideBackend,
		provideRouter,
		newApplication,
	)
	return nil, nil, nil
}
