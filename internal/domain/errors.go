package domain

import "errors"

var (
	// ErrInvalidInput marks missing or malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSaveFailed is returned when an observation could not be persisted.
	ErrSaveFailed = errors.New("failed to save telemetry data")
	// ErrQueryFailed is returned when an aggregate could not be computed.
	ErrQueryFailed = errors.New("failed to calculate average speed")
	// ErrStorage wraps failures of the persistence layer.
	ErrStorage = errors.New("storage failure")
	// ErrConflict is returned on uniqueness violations.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable is returned when the database cannot be reached before handling a request.
	ErrUnavailable = errors.New("database not reachable")
	// ErrRateLimited is returned when a client exceeds its request quota.
	ErrRateLimited = errors.New("rate limited")
)
