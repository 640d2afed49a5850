package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("hit", "hit", time.Millisecond, 3)
		m.CacheHit("result")
		m.PeerCall("Query.Execute", errors.New("refused"), time.Millisecond)
		m.AdminRequest()("/metrics", http.StatusOK)
		m.KafkaMessage("documents", nil)
	})
}

func TestCountersByLabel(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.RPCRequest("Search.Query", nil)
	m.RPCRequest("Search.Query", errors.New("bad"))
	m.RPCRequest("Search.Query", nil)
	m.KafkaMessage("filter-edits", errors.New("decode"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("Search.Query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("Search.Query", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaMessagesTotal.WithLabelValues("filter-edits", "failed")))

	done := m.AdminRequest()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminInFlight))
	done("/health/ready", http.StatusServiceUnavailable)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AdminInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminRequestsTotal.WithLabelValues("/health/ready", "503")))
}

func TestAdminMuxIndexAndRoutes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	mux := NewAdminMux(Route{Pattern: "/debug/query-stats", Handler: ok})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/debug/query-stats"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/query-stats", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
