package main

import (
	"net/http"

	"netscope/internal/application/health"
	"netscope/internal/infra"
)

type application struct {
	Config  infra.Config
	Logger  *infra.Logger
	Handler http.Handler
	Health  *health.Service
}

func newApplication(cfg infra.Config, logger *infra.Logger, handler http.Handler, checker *health.Service) *application {
	return &application{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Health:  checker,
	}
}
