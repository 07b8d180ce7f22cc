package infra

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port        string
	GRPCPort    string
	MetricsPort string
	Environment string
	LogLevel    string

	DatabaseDSN      string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string

	LibrespeedHost string
	LibrespeedPort string
	FrontendURL    string

	RedactIPAddresses bool
	LocationsFile     string

	AMQPURL      string
	AMQPExchange string

	GeneralRateLimit   RateLimit
	APIRateLimit       RateLimit
	TelemetryRateLimit RateLimit
}

// RateLimit allows Requests per Window for every client.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() Config {
	return Config{
		Port:        getEnv("PORT", getEnv("HTTP_PORT", "8080")),
		GRPCPort:    os.Getenv("GRPC_PORT"),
		MetricsPort: getEnv("METRICS_PORT", "2112"),
		Environment: getEnv("APP_ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseDSN:      getEnv("DATABASE_URL", os.Getenv("DB_DSN")),
		DatabaseHost:     os.Getenv("DB_HOST"),
		DatabasePort:     os.Getenv("DB_PORT"),
		DatabaseUser:     os.Getenv("DB_USER"),
		DatabasePassword: os.Getenv("DB_PASSWORD"),
		DatabaseName:     os.Getenv("DB_NAME"),

		LibrespeedHost: os.Getenv("LIBRESPEED_HOST"),
		LibrespeedPort: getEnv("LIBRESPEED_PORT", "80"),
		FrontendURL:    os.Getenv("FRONTEND_URL"),

		RedactIPAddresses: getEnvBool("REDACT_IP_ADDRESSES", false),
		LocationsFile:     os.Getenv("LOCATIONS_FILE"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "netscope.telemetry"),

		GeneralRateLimit: RateLimit{
			Requests: getEnvInt("RATE_LIMIT_GENERAL", 100),
			Window:   getEnvDuration("RATE_LIMIT_GENERAL_WINDOW", 15*time.Minute),
		},
		APIRateLimit: RateLimit{
			Requests: getEnvInt("RATE_LIMIT_API", 50),
			Window:   getEnvDuration("RATE_LIMIT_API_WINDOW", 15*time.Minute),
		},
		TelemetryRateLimit: RateLimit{
			Requests: getEnvInt("RATE_LIMIT_TELEMETRY", 10),
			Window:   getEnvDuration("RATE_LIMIT_TELEMETRY_WINDOW", time.Hour),
		},
	}
}

// IsDevelopment reports whether internal error detail may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// LogConfig prints the effective configuration with secrets redacted.
func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "PORT=%s", cfg.Port)
	logger.Printf(ctx, "GRPC_PORT=%s", EmptyFallback(cfg.GRPCPort, "(disabled)"))
	logger.Printf(ctx, "METRICS_PORT=%s", EmptyFallback(cfg.MetricsPort, "(disabled)"))
	logger.Printf(ctx, "APP_ENV=%s", cfg.Environment)
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DATABASE_URL set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DATABASE_URL not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", EmptyFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", EmptyFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", EmptyFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", EmptyFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "LIBRESPEED=%s:%s", EmptyFallback(cfg.LibrespeedHost, "(not set)"), cfg.LibrespeedPort)
	logger.Printf(ctx, "FRONTEND_URL=%s", EmptyFallback(cfg.FrontendURL, "*"))
	logger.Printf(ctx, "REDACT_IP_ADDRESSES=%t", cfg.RedactIPAddresses)
	logger.Printf(ctx, "LOCATIONS_FILE=%s", EmptyFallback(cfg.LocationsFile, "(built-in)"))
	if cfg.AMQPURL != "" {
		logger.Printf(ctx, "AMQP_URL set, exchange=%s", cfg.AMQPExchange)
	} else {
		logger.Println(ctx, "AMQP_URL not provided, publishing disabled")
	}
	logger.Printf(ctx, "RATE_LIMIT_GENERAL=%d/%s", cfg.GeneralRateLimit.Requests, cfg.GeneralRateLimit.Window)
	logger.Printf(ctx, "RATE_LIMIT_API=%d/%s", cfg.APIRateLimit.Requests, cfg.APIRateLimit.Window)
	logger.Printf(ctx, "RATE_LIMIT_TELEMETRY=%d/%s", cfg.TelemetryRateLimit.Requests, cfg.TelemetryRateLimit.Window)
}

// EmptyFallback returns fallback when value is empty.
func EmptyFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := cast.ToIntE(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := cast.ToBoolE(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := cast.ToDurationE(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
