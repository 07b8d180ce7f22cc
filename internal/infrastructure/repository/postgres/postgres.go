package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"netscope/internal/domain"
	"netscope/internal/infra"
)

const uniqueViolation = "23505"

// Measurement columns are stored as text. NULL, empty or unparsable values count as 0,
// as does anything outside domain.MeasurementPattern, so the cast cannot overflow.
const (
	dlValue   = `CASE WHEN TRIM(dl) ~ '` + domain.MeasurementPattern + `' THEN TRIM(dl)::double precision ELSE 0 END`
	ulValue   = `CASE WHEN TRIM(ul) ~ '` + domain.MeasurementPattern + `' THEN TRIM(ul)::double precision ELSE 0 END`
	pingValue = `CASE WHEN TRIM(ping) ~ '` + domain.MeasurementPattern + `' THEN TRIM(ping)::double precision ELSE 0 END`
)

const (
	insertObservationSQL = `
INSERT INTO speedtest_users (ip, ispinfo, isp_name, extra, ua, lang, dl, ul, ping, jitter, log, latitude, longitude, location)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
        CASE WHEN $12::double precision IS NULL OR $13::double precision IS NULL THEN NULL
             ELSE ST_SetSRID(ST_MakePoint($13::double precision, $12::double precision), 4326)::geography END)
RETURNING id
`
	ispStatsNearSQL = `
SELECT COALESCE(isp_name, ispinfo, '') AS descriptor,
       COUNT(*) AS entry_count,
       COALESCE(AVG(` + dlValue + `), 0) AS average_download,
       COALESCE(AVG(` + ulValue + `), 0) AS average_upload,
       COALESCE(AVG(` + pingValue + `), 0) AS average_ping
FROM speedtest_users
WHERE location IS NOT NULL
  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
GROUP BY COALESCE(isp_name, ispinfo, '')
`
	speedStatsAllSQL = `
SELECT COUNT(*) AS entry_count,
       COALESCE(AVG(` + dlValue + `), 0) AS average_download,
       COALESCE(AVG(` + ulValue + `), 0) AS average_upload,
       COALESCE(AVG(` + pingValue + `), 0) AS average_ping
FROM speedtest_users
`
	speedStatsByIPSQL = speedStatsAllSQL + `WHERE ip = $1
`
	pingSQL = `SELECT 1`
)

// Repository stores observations in Postgres/PostGIS.
type Repository struct {
	db     *sql.DB
	logger *infra.Logger

	closeOnce sync.Once
	closeErr  error
}

// New wraps an open database handle.
func New(db *sql.DB, logger *infra.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("postgres repository: db is required")
	}
	return &Repository{db: db, logger: logger}, nil
}

// Insert stores an observation and returns the id assigned by the database.
func (r *Repository) Insert(ctx context.Context, observation domain.Observation) (id int64, err error) {
	defer func(started time.Time) { infra.ObserveDBQuery("insert", started, err) }(time.Now())

	var latitude, longitude sql.NullFloat64
	if observation.Geo != nil {
		latitude = sql.NullFloat64{Float64: observation.Geo.Latitude, Valid: true}
		longitude = sql.NullFloat64{Float64: observation.Geo.Longitude, Valid: true}
	}

	m := observation.Measurements
	row := r.db.QueryRowContext(ctx, insertObservationSQL,
		observation.IP,
		observation.ISPInfo,
		observation.ISPName,
		observation.Extra,
		observation.UserAgent,
		observation.AcceptLanguage,
		m.Download,
		m.Upload,
		m.Ping,
		m.Jitter,
		observation.Log,
		latitude,
		longitude,
	)
	if err = row.Scan(&id); err != nil {
		return 0, wrapError("insert observation", err)
	}
	return id, nil
}

// ISPStatsNear groups observations within radiusMeters of center by ISP descriptor.
func (r *Repository) ISPStatsNear(ctx context.Context, center domain.GeoPoint, radiusMeters float64) (stats []domain.ISPStats, err error) {
	defer func(started time.Time) { infra.ObserveDBQuery("isp_stats_near", started, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx, ispStatsNearSQL, center.Longitude, center.Latitude, radiusMeters)
	if err != nil {
		return nil, wrapError("isp stats near", err)
	}
	defer rows.Close()

	stats = make([]domain.ISPStats, 0)
	for rows.Next() {
		var s domain.ISPStats
		if err = rows.Scan(&s.Descriptor, &s.Count, &s.AvgDownload, &s.AvgUpload, &s.AvgPing); err != nil {
			return nil, wrapError("scan isp stats", err)
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapError("iterate isp stats", err)
	}
	return stats, nil
}

// SpeedStatsByIP aggregates observations from ip, or all observations when ip is empty.
func (r *Repository) SpeedStatsByIP(ctx context.Context, ip string) (stats domain.SpeedStats, err error) {
	defer func(started time.Time) { infra.ObserveDBQuery("speed_stats_by_ip", started, err) }(time.Now())

	var row *sql.Row
	if ip == "" {
		row = r.db.QueryRowContext(ctx, speedStatsAllSQL)
	} else {
		row = r.db.QueryRowContext(ctx, speedStatsByIPSQL, ip)
	}
	if err = row.Scan(&stats.Count, &stats.AvgDownload, &stats.AvgUpload, &stats.AvgPing); err != nil {
		return domain.SpeedStats{}, wrapError("speed stats by ip", err)
	}
	return stats, nil
}

// Ping issues a trivial query against the database.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, pingSQL).Scan(&one); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

// Close releases the underlying pool. Subsequent calls return the first result.
func (r *Repository) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.db.Close()
		r.logger.Println(context.Background(), "database pool closed")
	})
	return r.closeErr
}

func wrapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("postgres repository: %s: %w: %w", op, domain.ErrConflict, err)
	}
	return fmt.Errorf("postgres repository: %s: %w: %w", op, domain.ErrStorage, err)
}

var _ domain.ObservationRepository = (*Repository)(nil)
