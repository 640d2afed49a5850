// Package metrics defines the Prometheus collectors of the query engine and
// exposes an HTTP handler for scraping. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	StageLatency        *prometheus.HistogramVec
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheRejectsTotal   *prometheus.CounterVec
	SavePointsTotal     *prometheus.CounterVec
	PeerCallsTotal      *prometheus.CounterVec
	PeerLatency         *prometheus.HistogramVec
	FilterEventsTotal   *prometheus.CounterVec
	IndexedDocs         prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
	RPCRequestsTotal    *prometheus.CounterVec
	AdminRequestsTotal  *prometheus.CounterVec
	AdminInFlight       prometheus.Gauge
	KafkaMessagesTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (hit, miss, resumed, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of rows returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_stage_latency_seconds",
				Help:    "Latency of a pipeline stage in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"stage"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits by cache (parse, result).",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total cache misses by cache (parse, result).",
			},
			[]string{"cache"},
		),
		CacheRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_rejects_total",
				Help: "Result cache entries rejected by reason (filter_edit, max_ttl, open_crawl, corrupt).",
			},
			[]string{"reason"},
		),
		SavePointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "save_points_total",
				Help: "Save point operations by kind (load, miss, save, corrupt).",
			},
			[]string{"op"},
		),
		PeerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peer_calls_total",
				Help: "Calls to peer machines by method and status.",
			},
			[]string{"method", "status"},
		),
		PeerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peer_call_latency_seconds",
				Help:    "Peer call latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method"},
		),
		FilterEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filter_events_total",
				Help: "Result filter events applied by type.",
			},
			[]string{"type"},
		),
		IndexedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexed_documents",
				Help: "Documents held by the in-memory index.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Peer RPC requests served by method and status.",
			},
			[]string{"method", "status"},
		),
		AdminRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_http_requests_total",
				Help: "Requests to the admin HTTP endpoints by path and status code.",
			},
			[]string{"path", "status"},
		),
		AdminInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admin_http_requests_in_flight",
				Help: "Admin HTTP requests being served.",
			},
		),
		KafkaMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_total",
				Help: "Kafka messages consumed by topic and outcome (ok, failed).",
			},
			[]string{"topic", "outcome"},
		),
	}

	reg.MustRegister(
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.StageLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheRejectsTotal,
		m.SavePointsTotal,
		m.PeerCallsTotal,
		m.PeerLatency,
		m.FilterEventsTotal,
		m.IndexedDocs,
		m.CircuitBreakerState,
		m.RPCRequestsTotal,
		m.AdminRequestsTotal,
		m.AdminInFlight,
		m.KafkaMessagesTotal,
	)

	return m
}

// ObserveQuery records one finished query.
func (m *Metrics) ObserveQuery(resultType, cacheStatus string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(d.Seconds())
	m.SearchResultsCount.Observe(float64(rows))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheReject(reason string) {
	if m == nil {
		return
	}
	m.CacheRejectsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SavePoint(op string) {
	if m == nil {
		return
	}
	m.SavePointsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) PeerCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PeerCallsTotal.WithLabelValues(method, status).Inc()
	m.PeerLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) FilterEvent(kind string) {
	if m == nil {
		return
	}
	m.FilterEventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetIndexedDocs(n int) {
	if m == nil {
		return
	}
	m.IndexedDocs.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RPCRequest(method string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// AdminRequest records a served admin request. It returns a func to call when
// the request finishes.
func (m *Metrics) AdminRequest() (done func(path string, status int)) {
	if m == nil {
		return func(string, int) {}
	}
	m.AdminInFlight.Inc()
	return func(path string, status int) {
		m.AdminInFlight.Dec()
		m.AdminRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	}
}

func (m *Metrics) KafkaMessage(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.KafkaMessagesTotal.WithLabelValues(topic, outcome).Inc()
}

// PeerLabel names a peer in metric labels.
func PeerLabel(machineID int) string {
	return "peer-" + strconv.Itoa(machineID)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
