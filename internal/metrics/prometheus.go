package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/milesdash/internal/core"
)

// Manager owns the dashboard's Prometheus metrics. It implements
// core.UploadObserver.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	runtime          bool
	registry         *prometheus.Registry

	// Upload metrics
	uploads          *prometheus.CounterVec
	uploadRejections *prometheus.CounterVec
	uploadDuration   prometheus.Histogram
	datasetRecords   prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ core.UploadObserver = (*Manager)(nil)

// NewManager creates a metrics manager on its own registry unless
// WithPrometheusRegistry says otherwise.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "milesdash",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.uploads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "uploads_total",
		Help:      "Completed upload attempts by outcome (success, rejected, stale)",
	}, []string{"outcome"})

	m.uploadRejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_rejections_total",
		Help:      "Rejected uploads by error kind and code",
	}, []string{"kind", "code"})

	m.uploadDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_duration_seconds",
		Help:      "Time from starting an upload to applying its result",
		Buckets:   m.histogramBuckets,
	})

	m.datasetRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_records",
		Help:      "Records in the most recently loaded dataset",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method", "status_code"})
}

// UploadFinished records one completed upload attempt.
func (m *Manager) UploadFinished(outcome string, verr *core.ValidationError, records int, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
	m.uploadDuration.Observe(elapsed.Seconds())

	switch outcome {
	case core.OutcomeSuccess:
		m.datasetRecords.Set(float64(records))
	case core.OutcomeRejected:
		if verr != nil {
			m.uploadRejections.WithLabelValues(string(verr.Kind), verr.Code).Inc()
		}
	}
}

// DatasetCleared resets the dataset gauge.
func (m *Manager) DatasetCleared() {
	if !m.enabled {
		return
	}
	m.datasetRecords.Set(0)
}

// TrackLimiter exports the limiter's occupancy as gauges.
func (m *Manager) TrackLimiter(l *core.UploadLimiter) {
	auto := promauto.With(m.registry)
	auto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "uploads_in_flight",
		Help:      "Uploads currently holding a limiter slot",
	}, func() float64 { return float64(l.ActiveCount()) })
	auto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_slots",
		Help:      "Maximum concurrent uploads",
	}, func() float64 { return float64(l.MaxConcurrent()) })
}

// Middleware records request counts and latency per chi route pattern.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := strconv.Itoa(status)
		m.httpRequests.WithLabelValues(route, r.Method, code).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method, code).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
