// Package health reports whether the service can reach its database.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netscope/internal/domain"
	"netscope/internal/infra"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"

	// CheckTimeout bounds the liveness query.
	CheckTimeout = 3 * time.Second
)

// Report is the result of a liveness check.
type Report struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether the database answered.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Service runs liveness checks.
type Service struct {
	pinger       domain.Pinger
	exposeDetail bool
	timeout      time.Duration
	logger       *infra.Logger
	now          func() time.Time
}

// NewService returns a checker; exposeDetail puts the failure text into reports.
func NewService(pinger domain.Pinger, exposeDetail bool, logger *infra.Logger) (*Service, error) {
	if pinger == nil {
		return nil, errors.New("health: pinger is required")
	}
	return &Service{
		pinger:       pinger,
		exposeDetail: exposeDetail,
		timeout:      CheckTimeout,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Check pings the database. It never panics and never returns an error:
// every failure becomes an unhealthy report.
func (s *Service) Check(ctx context.Context) Report {
	err := s.ping(ctx)
	report := Report{Timestamp: s.now().UTC()}
	if err == nil {
		report.Status = StatusHealthy
		report.Database = DatabaseConnected
		return report
	}

	s.logger.Errorw(ctx, "health check failed", "error", err.Error())
	report.Status = StatusUnhealthy
	report.Database = DatabaseDisconnected
	if s.exposeDetail {
		report.Database = err.Error()
	}
	return report
}

func (s *Service) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health: ping panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pinger.Ping(ctx)
}
