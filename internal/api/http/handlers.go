package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/spf13/cast"

	"netscope/internal/application/aggregator"
	"netscope/internal/application/health"
	"netscope/internal/application/telemetry"
	"netscope/internal/domain"
	"netscope/internal/infra"
	"netscope/internal/pkg/clientip"
)

const maxTelemetryBody = 10 << 20

// Ingester stores speed-test submissions.
type Ingester interface {
	Ingest(ctx context.Context, sub telemetry.Submission) (int64, error)
}

// Aggregator answers average-speed queries.
type Aggregator interface {
	AverageByLocation(ctx context.Context, point domain.GeoPoint) ([]aggregator.LocationAverage, error)
	AverageByIP(ctx context.Context, ip string) (aggregator.IPAverage, error)
}

// HealthChecker reports database liveness.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// handler contains the HTTP handlers and shared dependencies for the REST API.
type handler struct {
	telemetry    Ingester
	aggregator   Aggregator
	health       HealthChecker
	pinger       domain.Pinger
	logger       *infra.Logger
	exposeDetail bool
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *handler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	sub := h.parseSubmission(r)

	id, err := h.telemetry.Ingest(r.Context(), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0, s-maxage=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "id %d", id)
}

func (h *handler) handleAverageSpeed(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Has("ip") {
		result, err := h.aggregator.AverageByIP(r.Context(), query.Get("ip"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	point, err := aggregator.ParseCoordinates(query.Get("latitude"), query.Get("longitude"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.aggregator.AverageByLocation(r.Context(), point)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requireDatabase answers 503 before the handler runs when the database does not respond.
func (h *handler) requireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), health.CheckTimeout)
		err := h.pinger.Ping(ctx)
		cancel()
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrUnavailable, err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := translateError(err, h.exposeDetail)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err.Error())
	} else {
		h.logger.Infow(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(w, status, body)
}

var submissionFields = []string{"ip", "ispinfo", "extra", "dl", "ul", "ping", "jitter", "log"}

// parseSubmission reads a form, multipart or JSON body. A malformed body yields empty fields.
func (h *handler) parseSubmission(r *http.Request) telemetry.Submission {
	r.Body = http.MaxBytesReader(nil, r.Body, maxTelemetryBody)

	values := make(map[string]string, len(submissionFields))
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSONFields(r.Body, values); err != nil {
			h.logger.Infow(r.Context(), "telemetry body is not valid JSON", "error", err.Error())
		}
	} else {
		if err := r.ParseMultipartForm(maxTelemetryBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			h.logger.Infow(r.Context(), "telemetry form could not be parsed", "error", err.Error())
		}
		for _, field := range submissionFields {
			values[field] = r.PostFormValue(field)
		}
	}

	return telemetry.Submission{
		IP:             clientip.Resolve(r, values["ip"]),
		ISPInfo:        values["ispinfo"],
		Extra:          values["extra"],
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Download:       values["dl"],
		Upload:         values["ul"],
		Ping:           values["ping"],
		Jitter:         values["jitter"],
		Log:            values["log"],
	}
}

func decodeJSONFields(body io.Reader, into map[string]string) error {
	var payload map[string]any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return err
	}
	for _, field := range submissionFields {
		value, ok := payload[field]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case map[string]any, []any:
			raw, err := json.Marshal(v)
			if err == nil {
				into[field] = string(raw)
			}
		default:
			into[field] = cast.ToString(v)
		}
	}
	return nil
}
