package infra

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMiddlewareCountsRequestsAndErrors(t *testing.T) {
	t.Log("Шаг 1: оборачиваем обработчик, возвращающий 503")
	handler := HTTPMiddleware(func(*http.Request) string { return "/metrics-test" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
	)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/metrics-test", http.MethodGet))
	beforeErr := testutil.ToFloat64(HTTPRequestErrorsTotal.WithLabelValues("/metrics-test", http.StatusText(http.StatusServiceUnavailable)))

	t.Log("Шаг 2: выполняем запрос и проверяем счётчики")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whatever", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/metrics-test", http.MethodGet)))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(HTTPRequestErrorsTotal.WithLabelValues("/metrics-test", http.StatusText(http.StatusServiceUnavailable))))
}

func TestObserveDBQueryCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrorsTotal.WithLabelValues("test_op"))
	ObserveDBQuery("test_op", time.Now(), nil)
	ObserveDBQuery("test_op", time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(DBQueryErrorsTotal.WithLabelValues("test_op")))
}

func TestHandlerServesMetrics(t *testing.T) {
	ObservationsIngestedTotal.Add(0)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "netscope_observations_ingested_total")
}

func TestNewMetricsServerDisabledWithoutPort(t *testing.T) {
	assert.Nil(t, NewMetricsServer(""))
	srv := NewMetricsServer("9999")
	assert.Equal(t, ":9999", srv.Addr)
}
