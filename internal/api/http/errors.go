package httpapi

import (
	"errors"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"netscope/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const rateLimitMessage = "Too many requests, please try again later."

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// translateError maps an error to a status code and response body.
// Internal detail is attached only when exposeDetail is set.
func translateError(err error, exposeDetail bool) (int, errorResponse) {
	var (
		status int
		body   errorResponse
	)

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		body = errorResponse{Error: "Bad Request", Message: invalidInputMessage(err)}
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		body = errorResponse{Error: "Too Many Requests", Message: rateLimitMessage}
	case errors.Is(err, domain.ErrSaveFailed):
		status = http.StatusInternalServerError
		body = errorResponse{Error: "Internal Server Error", Message: "Failed to save telemetry data"}
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusBadRequest
		body = errorResponse{Error: "Duplicate entry", Message: "This entry already exists in the database"}
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
		body = errorResponse{Error: "Service Unavailable", Message: "Database not reachable"}
	case errors.Is(err, domain.ErrQueryFailed):
		status = http.StatusInternalServerError
		body = errorResponse{Error: "Internal Server Error", Message: "Failed to calculate average speed"}
	default:
		status = http.StatusInternalServerError
		body = errorResponse{Error: "Internal Server Error", Message: "Internal server error"}
	}

	if exposeDetail && err != nil {
		body.Details = err.Error()
	}
	return status, body
}

// invalidInputMessage returns the client-facing part of a wrapped ErrInvalidInput.
func invalidInputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
	if msg == "" || msg == domain.ErrInvalidInput.Error() {
		return "Invalid request"
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
