package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"netscope/internal/infra"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
	pingTimeout     = 5 * time.Second
)

// Connect opens a SQL database handle and validates it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return db, nil
}

// Open connects to Postgres and applies the migrations, retrying the whole
// sequence a fixed number of times before giving up.
func Open(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*Repository, error) {
	return open(ctx, cfg, logger, connectDelay)
}

func open(ctx context.Context, cfg infra.Config, logger *infra.Logger, delay time.Duration) (*Repository, error) {
	dsn, err := BuildDatabaseDSN(cfg)
	if err != nil {
		return nil, err
	}

	if parsed, parseErr := url.Parse(dsn); parseErr == nil {
		logger.Printf(ctx, "connecting to DSN host=%s db=%s user=%s",
			parsed.Hostname(), strings.TrimPrefix(parsed.Path, "/"), parsed.User.Username())
	}

	var db *sql.DB
	err = retry.Do(
		func() error {
			conn, connErr := Connect(ctx, dsn)
			if connErr != nil {
				return connErr
			}
			if migErr := ApplyMigrations(ctx, conn, logger); migErr != nil {
				_ = conn.Close()
				return migErr
			}
			db = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Printf(ctx, "database connection attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("db: unavailable after %d attempts: %w", connectAttempts, err)
	}

	logger.Println(ctx, "database connection established")
	return New(db, logger)
}

// BuildDatabaseDSN constructs a DSN from discrete configuration values when not provided explicitly.
func BuildDatabaseDSN(cfg infra.Config) (string, error) {
	if cfg.DatabaseDSN != "" {
		return cfg.DatabaseDSN, nil
	}

	if cfg.DatabaseHost == "" {
		return "", errors.New("database host is required when DSN is not provided")
	}
	if cfg.DatabaseUser == "" {
		return "", errors.New("database user is required when DSN is not provided")
	}
	if cfg.DatabaseName == "" {
		return "", errors.New("database name is required when DSN is not provided")
	}

	port := cfg.DatabasePort
	if port == "" {
		port = "5432"
	}

	connectionURL := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.DatabaseHost, port),
		Path:   "/" + cfg.DatabaseName,
		User:   url.UserPassword(cfg.DatabaseUser, cfg.DatabasePassword),
	}

	query := connectionURL.Query()
	query.Set("sslmode", "disable")
	connectionURL.RawQuery = query.Encode()

	return connectionURL.String(), nil
}
