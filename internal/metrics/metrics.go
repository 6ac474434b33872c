package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)
)

// SetVersion publishes the build version as a labeled gauge.
func SetVersion(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// Metrics holds all application metrics.
type Metrics struct {
	codecOperations   *prometheus.CounterVec
	codecDuration     *prometheus.HistogramVec
	codecErrors       *prometheus.CounterVec
	codecBytes        *prometheus.CounterVec
	batchFiles        *prometheus.CounterVec
	batchDuration     *prometheus.HistogramVec
	searchAttempts    prometheus.Counter
	searchDuration    prometheus.Histogram
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	goroutines        prometheus.Gauge
	memoryAllocBytes  prometheus.Gauge
	memorySysBytes    prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		codecOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codec_operations_total",
				Help: "Total number of container encode/decode operations",
			},
			[]string{"operation"}, // "encode" or "decode"
		),
		codecDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codec_duration_seconds",
				Help:    "Container encode/decode duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		codecErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codec_errors_total",
				Help: "Total number of container encode/decode errors",
			},
			[]string{"operation", "error_type"},
		),
		codecBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codec_bytes_total",
				Help: "Total container bytes encoded/decoded",
			},
			[]string{"operation"},
		),
		batchFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_files_total",
				Help: "Total number of files processed by batch operations",
			},
			[]string{"operation", "status"}, // status: "ok" or "failed"
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_file_duration_seconds",
				Help:    "Per-file batch processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		searchAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "search_attempts_total",
				Help: "Total number of credential search decode attempts",
			},
		),
		searchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_duration_seconds",
				Help:    "Credential search duration in seconds",
				Buckets: []float64{0.1, 1, 10, 60, 300, 1800, 3600, 7200},
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordCodecOperation records a container encode/decode.
func (m *Metrics) RecordCodecOperation(operation string, duration time.Duration, bytes int64) {
	m.codecOperations.WithLabelValues(operation).Inc()
	m.codecDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.codecBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordCodecError records an encode/decode failure.
func (m *Metrics) RecordCodecError(operation, errorType string) {
	m.codecErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordBatchFile records the outcome of one batch unit of work.
func (m *Metrics) RecordBatchFile(operation string, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "failed"
	}
	m.batchFiles.WithLabelValues(operation, status).Inc()
	m.batchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddSearchAttempts adds to the credential search attempt counter.
func (m *Metrics) AddSearchAttempts(n uint64) {
	m.searchAttempts.Add(float64(n))
}

// RecordSearchDuration records the wall time of a credential search.
func (m *Metrics) RecordSearchDuration(duration time.Duration) {
	m.searchDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(method, path, http.StatusText(status)).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
