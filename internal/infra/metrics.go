package infra

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "method"})
	HTTPRequestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "Total number of HTTP requests answered with a 4xx or 5xx status",
	}, []string{"route", "status"})
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netscope_request_duration_seconds",
		Help:    "Duration of request processing in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netscope_rate_limited_total",
		Help: "Requests rejected by a rate limiter",
	}, []string{"limiter"})

	// Telemetry metrics
	ObservationsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netscope_observations_ingested_total",
		Help: "Observations written to the database",
	})
	IngestFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netscope_ingest_failures_total",
		Help: "Observations that could not be written",
	})
	GeotaggedObservationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netscope_geotagged_observations_total",
		Help: "Observations stored with a geolocation",
	})
	AggregationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netscope_aggregations_total",
		Help: "Aggregation requests served",
	}, []string{"scope"})

	// Database metrics
	DBQueryDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netscope_db_query_duration_seconds",
		Help:    "Duration of database queries in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	DBQueryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netscope_db_query_errors_total",
		Help: "Failed database queries",
	}, []string{"op"})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestErrorsTotal,
			RequestDurationSeconds,
			RateLimitedTotal,
			ObservationsIngestedTotal,
			IngestFailuresTotal,
			GeotaggedObservationsTotal,
			AggregationsTotal,
			DBQueryDurationSeconds,
			DBQueryErrorsTotal,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// NewMetricsServer returns a server exposing /metrics on port, or nil when port is empty.
func NewMetricsServer(port string) *http.Server {
	if port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartMetricsServer serves srv in the background; errors other than shutdown are logged.
func StartMetricsServer(ctx context.Context, srv *http.Server, logger *Logger) {
	if srv == nil {
		return
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf(ctx, "metrics server error: %v", err)
		}
	}()
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics.
func HTTPMiddleware(routeResolver func(*http.Request) string) func(http.Handler) http.Handler {
	InitMetrics()
	if routeResolver == nil {
		routeResolver = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				// resolved after routing so chi has filled in the pattern
				route := routeResolver(r)
				RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
				HTTPRequestsTotal.WithLabelValues(route, r.Method).Inc()
				if recorder.Status() >= http.StatusBadRequest {
					HTTPRequestErrorsTotal.WithLabelValues(route, http.StatusText(recorder.Status())).Inc()
				}
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// ObserveDBQuery records the duration and outcome of a database operation.
func ObserveDBQuery(op string, started time.Time, err error) {
	DBQueryDurationSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		DBQueryErrorsTotal.WithLabelValues(op).Inc()
	}
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}

// Flush lets streamed proxy responses pass through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
