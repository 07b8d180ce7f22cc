package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscope/internal/application/aggregator"
	"netscope/internal/application/health"
	"netscope/internal/application/telemetry"
	"netscope/internal/domain"
	"netscope/internal/infra"
)

type stubIngester struct {
	id   int64
	err  error
	last telemetry.Submission
	n    int
}

func (s *stubIngester) Ingest(_ context.Context, sub telemetry.Submission) (int64, error) {
	s.n++
	s.last = sub
	return s.id, s.err
}

type stubAggregator struct {
	location  []aggregator.LocationAverage
	byIP      aggregator.IPAverage
	err       error
	lastPoint domain.GeoPoint
	lastIP    *string
}

func (s *stubAggregator) AverageByLocation(_ context.Context, point domain.GeoPoint) ([]aggregator.LocationAverage, error) {
	s.lastPoint = point
	return s.location, s.err
}

func (s *stubAggregator) AverageByIP(_ context.Context, ip string) (aggregator.IPAverage, error) {
	s.lastIP = &ip
	return s.byIP, s.err
}

type stubHealth struct{ report health.Report }

func (s stubHealth) Check(context.Context) health.Report { return s.report }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type fixture struct {
	ingester   *stubIngester
	aggregator *stubAggregator
	deps       Dependencies
}

func newFixture() *fixture {
	f := &fixture{
		ingester:   &stubIngester{id: 7},
		aggregator: &stubAggregator{},
	}
	f.deps = Dependencies{
		Telemetry:  f.ingester,
		Aggregator: f.aggregator,
		Health:     stubHealth{report: health.Report{Status: health.StatusHealthy, Database: health.DatabaseConnected, Timestamp: time.Now().UTC()}},
		Pinger:     stubPinger{},
		Logger:     infra.NewLogger(io.Discard, "test"),
		Config:     infra.Config{Environment: "production"},
	}
	return f
}

func (f *fixture) router(t *testing.T) http.Handler {
	t.Helper()
	router, err := NewRouter(f.deps)
	require.NoError(t, err)
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	t.Log("Шаг 1: здоровая база даёт 200")
	f := newFixture()
	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rr.Body.String(), `"database":"connected"`)
	assert.Contains(t, rr.Body.String(), `"timestamp"`)

	t.Log("Шаг 2: недоступная база даёт 503")
	f.deps.Health = stubHealth{report: health.Report{Status: health.StatusUnhealthy, Database: health.DatabaseDisconnected}}
	rr = serve(f.router(t), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"unhealthy"`)
}

func TestTelemetryFormSubmission(t *testing.T) {
	f := newFixture()
	form := url.Values{
		"ispinfo": {`{"processedString":"MTN"}`},
		"dl":      {"50.5"},
		"ul":      {"10"},
		"ping":    {"20"},
		"jitter":  {"3"},
		"log":     {"trace"},
		"extra":   {`{"latitude":7.30334,"longitude":5.13612}`},
	}
	req := httptest.NewRequest(http.MethodPost, "/speedtest/results", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept-Language", "en-NG")
	req.Header.Set("X-Forwarded-For", "102.89.1.1, 10.0.0.1")

	rr := serve(f.router(t), req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "id 7", rr.Body.String())
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0, s-maxage=0", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, telemetry.Submission{
		IP:             "102.89.1.1",
		ISPInfo:        `{"processedString":"MTN"}`,
		Extra:          `{"latitude":7.30334,"longitude":5.13612}`,
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-NG",
		Download:       "50.5",
		Upload:         "10",
		Ping:           "20",
		Jitter:         "3",
		Log:            "trace",
	}, f.ingester.last)
}

func TestTelemetryMultipartSubmission(t *testing.T) {
	f := newFixture()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("dl", "12.5"))
	require.NoError(t, mw.WriteField("ip", "::ffff:41.58.0.1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/speedtest/results/telemetry.php", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := serve(f.router(t), req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "12.5", f.ingester.last.Download)
	assert.Equal(t, "41.58.0.1", f.ingester.last.IP)
	assert.Equal(t, "", f.ingester.last.Upload)
}

func TestTelemetryJSONSubmission(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/speedtest/results",
		strings.NewReader(`{"dl":50.5,"ul":"9","ispinfo":{"rawIspInfo":{"org":"Airtel"}},"extra":null}`))
	req.Header.Set("Content-Type", "application/json")

	rr := serve(f.router(t), req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "50.5", f.ingester.last.Download)
	assert.Equal(t, "9", f.ingester.last.Upload)
	assert.JSONEq(t, `{"rawIspInfo":{"org":"Airtel"}}`, f.ingester.last.ISPInfo)
	assert.Equal(t, "", f.ingester.last.Extra)
	assert.Equal(t, "192.0.2.1", f.ingester.last.IP)
}

func TestTelemetryMalformedBodyStillIngests(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/speedtest/results", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")

	rr := serve(f.router(t), req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, f.ingester.n)
	assert.Equal(t, "", f.ingester.last.Download)
}

func TestTelemetryFailureEnvelope(t *testing.T) {
	f := newFixture()
	f.ingester.err = errors.Join(domain.ErrSaveFailed, errors.New("pq: relation missing"))

	req := httptest.NewRequest(http.MethodPost, "/speedtest/results", nil)
	rr := serve(f.router(t), req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Failed to save telemetry data"}`, rr.Body.String())

	t.Log("в режиме разработки добавляются детали")
	f.deps.Config.Environment = "development"
	rr = serve(f.router(t), httptest.NewRequest(http.MethodPost, "/speedtest/results", nil))
	assert.Contains(t, rr.Body.String(), "relation missing")
}

func TestAverageSpeedRequiresCoordinates(t *testing.T) {
	f := newFixture()
	for _, target := range []string{"/api/average-speed", "/api/average-speed?latitude=7.3", "/api/average-speed?latitude=x&longitude=5"} {
		rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.JSONEq(t, `{"error":"Bad Request","message":"Latitude and Longitude are required."}`, rr.Body.String())
	}
}

func TestAverageSpeedByLocation(t *testing.T) {
	f := newFixture()
	f.aggregator.location = []aggregator.LocationAverage{
		{ISPInfo: "MTN", AverageDownload: domain.NewAverage(50.456, 20), AverageUpload: domain.NewAverage(10, 20), EntryCount: 20},
		{ISPInfo: "Airtel"},
	}

	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/api/average-speed?latitude=7.30334&longitude=5.13612", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.GeoPoint{Latitude: 7.30334, Longitude: 5.13612}, f.aggregator.lastPoint)
	assert.JSONEq(t, `[
		{"ispinfo":"MTN","average_download":50.46,"average_upload":10,"entry_count":20},
		{"ispinfo":"Airtel","average_download":"Not Enough Data","average_upload":"Not Enough Data","entry_count":0}
	]`, rr.Body.String())
}

func TestAverageSpeedEmptyLocationResult(t *testing.T) {
	f := newFixture()
	f.aggregator.location = []aggregator.LocationAverage{}

	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/api/average-speed?latitude=6.5&longitude=3.3", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAverageSpeedByIP(t *testing.T) {
	f := newFixture()
	f.aggregator.byIP = aggregator.IPAverage{IP: "10.0.0.1", EntryCount: 2}

	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/api/average-speed?ip=10.0.0.1&latitude=7.3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, f.aggregator.lastIP)
	assert.Equal(t, "10.0.0.1", *f.aggregator.lastIP)
	assert.Contains(t, rr.Body.String(), `"average_ping":"Not Enough Data"`)

	t.Log("пустой ip означает все записи")
	rr = serve(f.router(t), httptest.NewRequest(http.MethodGet, "/api/average-speed?ip=", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "", *f.aggregator.lastIP)
}

func TestAverageSpeedStorageFailure(t *testing.T) {
	f := newFixture()
	f.aggregator.err = errors.Join(domain.ErrQueryFailed, domain.ErrStorage)

	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/api/average-speed?ip=1.1.1.1", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Failed to calculate average speed"}`, rr.Body.String())
}

func TestDatabaseGuardRejectsWhenUnreachable(t *testing.T) {
	f := newFixture()
	f.deps.Pinger = stubPinger{err: errors.New("connection refused")}
	router := f.router(t)

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/speedtest/results", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"error":"Service Unavailable","message":"Database not reachable"}`, rr.Body.String())
	assert.Zero(t, f.ingester.n)

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/api/average-speed?ip=", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTelemetryRateLimit(t *testing.T) {
	f := newFixture()
	f.deps.Config.TelemetryRateLimit = infra.RateLimit{Requests: 2, Window: time.Hour}
	router := f.router(t)

	for i := 0; i < 2; i++ {
		rr := serve(router, httptest.NewRequest(http.MethodPost, "/speedtest/results", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/speedtest/results", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests","message":"Too many requests, please try again later."}`, rr.Body.String())
	assert.Equal(t, "1800", rr.Header().Get("Retry-After"))

	t.Log("другой клиент не затронут, другие маршруты тоже")
	other := httptest.NewRequest(http.MethodPost, "/speedtest/results", nil)
	other.RemoteAddr = "198.51.100.7:5555"
	assert.Equal(t, http.StatusOK, serve(router, other).Code)
	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestGeneralRateLimitCoversHealth(t *testing.T) {
	f := newFixture()
	f.deps.Config.GeneralRateLimit = infra.RateLimit{Requests: 1, Window: time.Minute}
	router := f.router(t)

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestProxyForwardsWithoutPrefix(t *testing.T) {
	var gotPath, gotQuery, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotHost = r.URL.Path, r.URL.RawQuery, r.Host
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write([]byte("garbage"))
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	f := newFixture()
	f.deps.Backend = target
	f.deps.Config.GeneralRateLimit = infra.RateLimit{Requests: 1, Window: time.Hour}
	router := f.router(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/speedtest/backend/garbage.php?ckSize=100", nil)
		req.Header.Set("Origin", "https://netscope.example")
		rr := serve(router, req)

		require.Equal(t, http.StatusOK, rr.Code, "proxy is not rate limited")
		assert.Equal(t, "garbage", rr.Body.String())
		assert.Equal(t, []string{"https://netscope.example"}, rr.Header().Values("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	}

	assert.Equal(t, "/garbage.php", gotPath)
	assert.Equal(t, "ckSize=100", gotQuery)
	assert.Equal(t, target.Host, gotHost)
}

func TestProxyUpstreamFailure(t *testing.T) {
	f := newFixture()
	f.deps.Backend = &url.URL{Scheme: "http", Host: "127.0.0.1:1"}

	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/speedtest/backend/empty.php", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.JSONEq(t, `{"error":"Bad Gateway","message":"Failed to proxy request to speed-test backend"}`, rr.Body.String())
}

func TestProxyNotMountedWithoutBackend(t *testing.T) {
	f := newFixture()
	rr := serve(f.router(t), httptest.NewRequest(http.MethodGet, "/speedtest/backend/empty.php", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBackendURL(t *testing.T) {
	target, err := BackendURL("", "80")
	require.NoError(t, err)
	assert.Nil(t, target)

	target, err = BackendURL("librespeed", "")
	require.NoError(t, err)
	assert.Equal(t, "http://librespeed:80", target.String())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()
	f.deps.Config.FrontendURL = "https://netscope.example"

	req := httptest.NewRequest(http.MethodOptions, "/api/average-speed", nil)
	req.Header.Set("Origin", "https://netscope.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := serve(f.router(t), req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://netscope.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture()
	router := f.router(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", serve(router, req).Header().Get(requestIDHeader))

	generated := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{errors.Join(domain.ErrInvalidInput), http.StatusBadRequest, "Invalid request"},
		{errors.Join(domain.ErrConflict, errors.New("pq: duplicate key")), http.StatusBadRequest, "This entry already exists in the database"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, rateLimitMessage},
		{domain.ErrStorage, http.StatusInternalServerError, "Internal server error"},
		{errors.New("unknown"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		status, body := translateError(tc.err, false)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.message, body.Message)
		assert.Empty(t, body.Details)
	}

	_, body := translateError(errors.New("boom"), true)
	assert.Equal(t, "boom", body.Details)
}
