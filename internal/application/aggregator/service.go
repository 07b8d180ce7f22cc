// Package aggregator computes the speed averages published by the API.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"netscope/internal/domain"
	"netscope/internal/infra"
	"netscope/internal/pkg/carrier"
	"netscope/internal/pkg/locations"
)

// SearchRadiusMeters is the geographic radius around a known location that is aggregated.
const SearchRadiusMeters = 200

// LocationAverage is one carrier row of a location-scoped aggregate.
type LocationAverage struct {
	ISPInfo         string         `json:"ispinfo"`
	AverageDownload domain.Average `json:"average_download"`
	AverageUpload   domain.Average `json:"average_upload"`
	EntryCount      int64          `json:"entry_count"`
}

// IPAverage is the aggregate over one client IP, or over every observation.
type IPAverage struct {
	IP              string         `json:"ip"`
	AverageDownload domain.Average `json:"average_download"`
	AverageUpload   domain.Average `json:"average_upload"`
	AveragePing     domain.Average `json:"average_ping"`
	EntryCount      int64          `json:"entry_count"`
}

// Service answers aggregation queries.
type Service struct {
	repo      domain.ObservationReader
	catalogue *locations.Catalogue
	logger    *infra.Logger
}

// New creates a new aggregation service.
func New(repo domain.ObservationReader, catalogue *locations.Catalogue, logger *infra.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("aggregator: repository is required")
	}
	if catalogue == nil {
		catalogue = locations.New(locations.Default)
	}
	return &Service{repo: repo, catalogue: catalogue, logger: logger}, nil
}

// ParseCoordinates validates the raw latitude/longitude query values.
func ParseCoordinates(latitude, longitude string) (domain.GeoPoint, error) {
	latitude, longitude = strings.TrimSpace(latitude), strings.TrimSpace(longitude)
	if latitude == "" || longitude == "" {
		return domain.GeoPoint{}, fmt.Errorf("%w: Latitude and Longitude are required.", domain.ErrInvalidInput)
	}
	lat, latErr := cast.ToFloat64E(latitude)
	lng, lngErr := cast.ToFloat64E(longitude)
	if latErr != nil || lngErr != nil || !finite(lat) || !finite(lng) {
		return domain.GeoPoint{}, fmt.Errorf("%w: Latitude and Longitude are required.", domain.ErrInvalidInput)
	}
	return domain.GeoPoint{Latitude: lat, Longitude: lng}, nil
}

// AverageByLocation aggregates observations around the known location matching point.
// An unknown point yields an empty, non-nil result.
func (s *Service) AverageByLocation(ctx context.Context, point domain.GeoPoint) ([]LocationAverage, error) {
	site, ok := s.catalogue.Match(point)
	if !ok {
		s.logger.Infow(ctx, "no known location near query", "latitude", point.Latitude, "longitude", point.Longitude)
		return []LocationAverage{}, nil
	}
	infra.AggregationsTotal.WithLabelValues("location").Inc()

	stats, err := s.repo.ISPStatsNear(ctx, site.Point(), SearchRadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("%w: location %s: %w", domain.ErrQueryFailed, site.Code, err)
	}

	return present(merge(stats)), nil
}

// AverageByIP aggregates observations submitted from ip, or all observations when ip is empty.
func (s *Service) AverageByIP(ctx context.Context, ip string) (IPAverage, error) {
	infra.AggregationsTotal.WithLabelValues("ip").Inc()

	ip = strings.TrimSpace(ip)
	stats, err := s.repo.SpeedStatsByIP(ctx, ip)
	if err != nil {
		return IPAverage{}, fmt.Errorf("%w: ip: %w", domain.ErrQueryFailed, err)
	}

	return IPAverage{
		IP:              ip,
		AverageDownload: domain.NewAverage(stats.AvgDownload, stats.Count),
		AverageUpload:   domain.NewAverage(stats.AvgUpload, stats.Count),
		AveragePing:     domain.NewAverage(stats.AvgPing, stats.Count),
		EntryCount:      stats.Count,
	}, nil
}

// group accumulates count-weighted sums for one canonical carrier name.
type group struct {
	count    int64
	download float64
	upload   float64
}

// merge reconciles descriptors to canonical carrier names and combines groups that share one.
func merge(stats []domain.ISPStats) map[string]*group {
	groups := make(map[string]*group, len(stats))
	for _, st := range stats {
		name := carrier.Canonical(st.Descriptor)
		if name == "" || st.Count <= 0 {
			continue
		}
		g, ok := groups[name]
		if !ok {
			g = &group{}
			groups[name] = g
		}
		n := float64(st.Count)
		g.count += st.Count
		g.download += st.AvgDownload * n
		g.upload += st.AvgUpload * n
	}
	return groups
}

// present lists the major carriers first, in display order, then every other carrier by name.
func present(groups map[string]*group) []LocationAverage {
	others := lo.Filter(lo.Keys(groups), func(name string, _ int) bool { return !carrier.IsMajor(name) })
	slices.Sort(others)

	names := append(slices.Clone(carrier.Major), others...)
	return lo.Map(names, func(name string, _ int) LocationAverage {
		g, ok := groups[name]
		if !ok {
			return LocationAverage{ISPInfo: name}
		}
		n := float64(g.count)
		return LocationAverage{
			ISPInfo:         name,
			AverageDownload: domain.NewAverage(g.download/n, g.count),
			AverageUpload:   domain.NewAverage(g.upload/n, g.count),
			EntryCount:      g.count,
		}
	})
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
