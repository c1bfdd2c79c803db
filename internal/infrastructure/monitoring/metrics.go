package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// RPC metrics, labelled by side (client|server) and method
	RPCCalls    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
	RPCInFlight *prometheus.GaugeVec

	// Decoder metrics
	DecodeStrategies *prometheus.CounterVec
	BodyBytes        *prometheus.HistogramVec

	// Blob staging metrics
	BlobsStaged  prometheus.Counter
	BlobsPending prometheus.Gauge
	BlobsExpired prometheus.Counter

	// Sandbox lifecycle metrics
	SessionTransitions *prometheus.CounterVec
	ModuleFaults       *prometheus.CounterVec

	// Host HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalCalls   int64  `json:"total_calls"`
	FailedCalls  int64  `json:"failed_calls"`
	BlobsPending int64  `json:"blobs_pending"`
	SessionState string `json:"session_state"`
}

// NewMetrics registers all collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixfetch_rpc_calls_total",
				Help: "Total number of RPC calls across the sandbox boundary",
			},
			[]string{"side", "method", "status"},
		),
		RPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixfetch_rpc_duration_seconds",
				Help:    "RPC call duration in seconds, mixnet round trip included",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"side", "method"},
		),
		RPCInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mixfetch_rpc_in_flight",
				Help: "Number of RPC calls awaiting a response",
			},
			[]string{"side"},
		),
		DecodeStrategies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixfetch_decode_strategy_total",
				Help: "Response bodies decoded, by strategy",
			},
			[]string{"strategy"},
		),
		BodyBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixfetch_body_bytes",
				Help:    "Decoded response body size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"strategy"},
		),
		BlobsStaged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mixfetch_blobs_staged_total",
				Help: "Total number of blobs staged for dereference",
			},
		),
		BlobsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mixfetch_blobs_pending",
				Help: "Blobs staged but not yet dereferenced or released",
			},
		),
		BlobsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mixfetch_blobs_expired_total",
				Help: "Blobs released by the TTL sweeper",
			},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixfetch_session_transitions_total",
				Help: "Sandbox session state transitions",
			},
			[]string{"from", "to"},
		),
		ModuleFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixfetch_module_faults_total",
				Help: "Faults raised inside binary modules",
			},
			[]string{"module"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixfetch_host_http_requests_total",
				Help: "Total number of HTTP requests served by the sandbox host",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixfetch_host_http_request_duration_seconds",
				Help:    "Sandbox host HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mixfetch_host_ws_connections",
				Help: "Number of active RPC websocket connections",
			},
		),
	}
}

// RecordRPCCall records one completed RPC call
func (m *Metrics) RecordRPCCall(side, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(side, method, status).Inc()
	m.RPCDuration.WithLabelValues(side, method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCalls++
	if status != "ok" {
		m.snapshot.FailedCalls++
	}
	m.mu.Unlock()
}

// CallStarted increments the in-flight gauge for side
func (m *Metrics) CallStarted(side string) {
	if m == nil {
		return
	}
	m.RPCInFlight.WithLabelValues(side).Inc()
}

// CallFinished decrements the in-flight gauge for side
func (m *Metrics) CallFinished(side string) {
	if m == nil {
		return
	}
	m.RPCInFlight.WithLabelValues(side).Dec()
}

// RecordDecode records the strategy applied to one response body
func (m *Metrics) RecordDecode(strategy string, size int) {
	if m == nil {
		return
	}
	m.DecodeStrategies.WithLabelValues(strategy).Inc()
	m.BodyBytes.WithLabelValues(strategy).Observe(float64(size))
}

// BlobStaged records a newly staged blob
func (m *Metrics) BlobStaged() {
	if m == nil {
		return
	}
	m.BlobsStaged.Inc()
	m.BlobsPending.Inc()
	m.mu.Lock()
	m.snapshot.BlobsPending++
	m.mu.Unlock()
}

// BlobReleased records a blob leaving the store; expired marks TTL eviction
func (m *Metrics) BlobReleased(expired bool) {
	if m == nil {
		return
	}
	m.BlobsPending.Dec()
	if expired {
		m.BlobsExpired.Inc()
	}
	m.mu.Lock()
	m.snapshot.BlobsPending--
	m.mu.Unlock()
}

// RecordTransition records a session state transition
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
	m.mu.Lock()
	m.snapshot.SessionState = to
	m.mu.Unlock()
}

// RecordModuleFault records a fault raised inside module
func (m *Metrics) RecordModuleFault(module string) {
	if m == nil {
		return
	}
	m.ModuleFaults.WithLabelValues(module).Inc()
}

// RecordHTTPRequest records an HTTP request served by the host
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments websocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements websocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
