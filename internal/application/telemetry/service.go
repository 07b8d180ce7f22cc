// Package telemetry turns raw speed-test submissions into stored observations.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"netscope/internal/domain"
	"netscope/internal/infra"
	"netscope/internal/pkg/carrier"
	"netscope/internal/pkg/clientip"
	"netscope/internal/pkg/extra"
	"netscope/internal/pkg/redact"
)

const (
	unknownIP      = "0.0.0.0"
	publishTimeout = 2 * time.Second
)

// Submission is one speed-test result as sent by the client. Absent fields are empty.
type Submission struct {
	IP             string
	ISPInfo        string
	Extra          string
	UserAgent      string
	AcceptLanguage string
	Download       string
	Upload         string
	Ping           string
	Jitter         string
	Log            string
}

// Service ingests submissions.
type Service struct {
	writer    domain.ObservationWriter
	publisher domain.ObservationPublisher
	redactor  redact.Redactor
	logger    *infra.Logger
	now       func() time.Time
}

// NewService builds an ingestion service. publisher may be nil.
func NewService(writer domain.ObservationWriter, publisher domain.ObservationPublisher, redactor redact.Redactor, logger *infra.Logger) (*Service, error) {
	if writer == nil {
		return nil, errors.New("telemetry: writer is required")
	}
	return &Service{
		writer:    writer,
		publisher: publisher,
		redactor:  redactor,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Ingest stores the submission and returns the id assigned to it.
func (s *Service) Ingest(ctx context.Context, sub Submission) (int64, error) {
	observation := s.Normalize(sub)

	id, err := s.writer.Insert(ctx, observation)
	if err != nil {
		infra.IngestFailuresTotal.Inc()
		s.logger.Errorw(ctx, "telemetry insert failed", "error", err.Error())
		return 0, fmt.Errorf("%w: %w", domain.ErrSaveFailed, err)
	}

	infra.ObservationsIngestedTotal.Inc()
	if observation.Geo != nil {
		infra.GeotaggedObservationsTotal.Inc()
	}

	observation.ID = id
	observation.Timestamp = s.now().UTC()
	s.logger.Infow(ctx, "telemetry stored", "id", id, "geotagged", observation.Geo != nil)

	s.publish(ctx, observation)
	return id, nil
}

// Normalize builds the observation that Ingest would store for sub.
// Redaction runs before the carrier name is derived from the descriptor.
func (s *Service) Normalize(sub Submission) domain.Observation {
	ip := clientip.Strip(strings.TrimSpace(sub.IP))
	if ip == "" {
		ip = unknownIP
	}

	observation := domain.Observation{
		IP:             s.redactor.IP(ip),
		ISPInfo:        s.redactor.Apply(sub.ISPInfo),
		Extra:          sub.Extra,
		UserAgent:      sub.UserAgent,
		AcceptLanguage: sub.AcceptLanguage,
		Measurements: domain.Measurements{
			Download: sub.Download,
			Upload:   sub.Upload,
			Ping:     sub.Ping,
			Jitter:   sub.Jitter,
		},
		Log: s.redactor.Apply(sub.Log),
	}

	if raw, ok := extra.RawISPName(observation.ISPInfo); ok {
		name := carrier.Normalize(raw)
		observation.ISPName = &name
	}
	if point, ok := extra.Location(sub.Extra); ok {
		observation.Geo = &point
	}
	return observation
}

func (s *Service) publish(ctx context.Context, observation domain.Observation) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, observation); err != nil {
		s.logger.Errorw(ctx, "publish observation failed", "id", observation.ID, "error", err.Error())
	}
}
