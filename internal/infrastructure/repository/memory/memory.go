// Package memory provides an in-process observation store used by tests and local runs.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"netscope/internal/domain"
)

const earthRadiusMeters = 6371008.8

// Repository stores observations in memory and satisfies the domain repository contract.
type Repository struct {
	mu           sync.RWMutex
	observations []domain.Observation
	nextID       int64
	pingErr      error
	now          func() time.Time
}

// New creates an empty in-memory repository instance.
func New() *Repository {
	return &Repository{now: time.Now}
}

// Seed replaces the internal storage with the provided observations, assigning ids.
func (r *Repository) Seed(observations []domain.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observations = r.observations[:0]
	r.nextID = 0
	for _, o := range observations {
		r.insertLocked(o)
	}
}

// SetPingError makes subsequent Ping calls fail with err; nil restores health.
func (r *Repository) SetPingError(err error) {
	r.mu.Lock()
	r.pingErr = err
	r.mu.Unlock()
}

// Insert stores an observation and returns its id.
func (r *Repository) Insert(ctx context.Context, observation domain.Observation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(observation), nil
}

func (r *Repository) insertLocked(o domain.Observation) int64 {
	r.nextID++
	o.ID = r.nextID
	if o.Timestamp.IsZero() {
		o.Timestamp = r.now().UTC()
	}
	if o.Geo != nil {
		geo := *o.Geo
		o.Geo = &geo
	}
	r.observations = append(r.observations, o)
	return o.ID
}

// All returns a copy of the stored observations in insertion order.
func (r *Repository) All() []domain.Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	copied := make([]domain.Observation, len(r.observations))
	copy(copied, r.observations)
	return copied
}

// ISPStatsNear groups geolocated observations within radiusMeters of center.
func (r *Repository) ISPStatsNear(_ context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.ISPStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type sums struct {
		count          int64
		dl, ul, pingMs float64
	}
	groups := map[string]*sums{}
	for _, o := range r.observations {
		if o.Geo == nil || distanceMeters(center, *o.Geo) > radiusMeters {
			continue
		}
		key := o.ISPInfo
		if o.ISPName != nil {
			key = *o.ISPName
		}
		g, ok := groups[key]
		if !ok {
			g = &sums{}
			groups[key] = g
		}
		g.count++
		g.dl += domain.ParseMeasurement(o.Measurements.Download)
		g.ul += domain.ParseMeasurement(o.Measurements.Upload)
		g.pingMs += domain.ParseMeasurement(o.Measurements.Ping)
	}

	stats := make([]domain.ISPStats, 0, len(groups))
	for descriptor, g := range groups {
		n := float64(g.count)
		stats = append(stats, domain.ISPStats{
			Descriptor:  descriptor,
			Count:       g.count,
			AvgDownload: g.dl / n,
			AvgUpload:   g.ul / n,
			AvgPing:     g.pingMs / n,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Descriptor < stats[j].Descriptor })
	return stats, nil
}

// SpeedStatsByIP aggregates observations from ip, or all observations when ip is empty.
func (r *Repository) SpeedStatsByIP(_ context.Context, ip string) (domain.SpeedStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.SpeedStats
	var dl, ul, pingMs float64
	for _, o := range r.observations {
		if ip != "" && o.IP != ip {
			continue
		}
		stats.Count++
		dl += domain.ParseMeasurement(o.Measurements.Download)
		ul += domain.ParseMeasurement(o.Measurements.Upload)
		pingMs += domain.ParseMeasurement(o.Measurements.Ping)
	}
	if stats.Count > 0 {
		n := float64(stats.Count)
		stats.AvgDownload, stats.AvgUpload, stats.AvgPing = dl/n, ul/n, pingMs/n
	}
	return stats, nil
}

// Ping reports the configured ping error, if any.
func (r *Repository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pingErr
}

// distanceMeters is the haversine great-circle distance between a and b.
func distanceMeters(a, b domain.GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Latitude - a.Latitude)
	dLng := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

var _ domain.ObservationRepository = (*Repository)(nil)
