package domain

import "context"

// ObservationWriter persists new observations and returns their assigned id.
type ObservationWriter interface {
	Insert(ctx context.Context, observation Observation) (int64, error)
}

// ObservationReader exposes the aggregate queries used by the aggregator application.
type ObservationReader interface {
	ISPStatsNear(ctx context.Context, center GeoPoint, radiusMeters float64) ([]ISPStats, error)
	SpeedStatsByIP(ctx context.Context, ip string) (SpeedStats, error)
}

// Pinger checks that the persistence layer is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ObservationRepository aggregates the capabilities required by the service.
type ObservationRepository interface {
	ObservationWriter
	ObservationReader
	Pinger
}

// ObservationPublisher fans recorded observations out to downstream consumers.
type ObservationPublisher interface {
	Publish(ctx context.Context, observation Observation) error
}
