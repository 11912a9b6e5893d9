package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, metricsReq)
	require.Contains(t, metricsRec.Body.String(), "erplite_http_requests_total")
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.AddEventApplied("RECEIPT")
	m.AddAlertEmitted("LOW_STOCK")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, `erplite_ledger_events_applied_total{kind="RECEIPT"} 1`)
	require.Contains(t, body, `erplite_alerts_emitted_total{kind="LOW_STOCK"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddEventApplied("RECEIPT")
	m.AddAlertEmitted("LOW_STOCK")
	require.NotNil(t, m.Handler())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, m.Middleware(next))
}
