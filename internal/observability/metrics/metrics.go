package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// ServerMetrics owns a private registry so tests can create instances
// without colliding on the default global one.
type ServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	trackDuration      *prometheus.HistogramVec
	trackDegradedTotal *prometheus.CounterVec
	fusedResults       *prometheus.HistogramVec

	turnsTotal         *prometheus.CounterVec
	intentMatchesTotal *prometheus.CounterVec
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "grd",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	trackDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grd",
			Subsystem: "retrieval",
			Name:      "track_duration_seconds",
			Help:      "Retrieval track duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "track"},
	)
	trackDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grd",
			Subsystem: "retrieval",
			Name:      "track_degraded_total",
			Help:      "Retrieval tracks that failed or timed out and contributed nothing.",
		},
		[]string{"service", "track"},
	)
	fusedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grd",
			Subsystem: "retrieval",
			Name:      "fused_results",
			Help:      "Distribution of fused result counts per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grd",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total completed dialogue turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	intentMatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grd",
			Subsystem: "dialogue",
			Name:      "intent_matches_total",
			Help:      "Intent matching attempts by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		trackDuration,
		trackDegradedTotal,
		fusedResults,
		turnsTotal,
		intentMatchesTotal,
	)

	return &ServerMetrics{
		service:            service,
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		trackDuration:      trackDuration,
		trackDegradedTotal: trackDegradedTotal,
		fusedResults:       fusedResults,
		turnsTotal:         turnsTotal,
		intentMatchesTotal: intentMatchesTotal,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/conversation/session/"):
		if strings.HasSuffix(path, "/reset") {
			return "/v1/conversation/session/{id}/reset"
		}
		return "/v1/conversation/session/{id}"
	case strings.HasPrefix(path, "/v1/conversation/flow/intent/"):
		return "/v1/conversation/flow/intent/{id}"
	case strings.HasPrefix(path, "/v1/conversation/flow/condition/"):
		return "/v1/conversation/flow/condition/{id}"
	case strings.HasPrefix(path, "/v1/conversation/flow/action/"):
		return "/v1/conversation/flow/action/{id}"
	case strings.HasPrefix(path, "/v1/conversation/flow/response/"):
		return "/v1/conversation/flow/response/{id}"
	case strings.HasPrefix(path, "/v1/conversation/flow/edge/"):
		return "/v1/conversation/flow/edge/{id}"
	default:
		return path
	}
}

func (m *ServerMetrics) ObserveTrack(source domain.ResultSource, elapsed time.Duration, degraded bool) {
	track := string(source)
	m.trackDuration.WithLabelValues(m.service, track).Observe(elapsed.Seconds())
	if degraded {
		m.trackDegradedTotal.WithLabelValues(m.service, track).Inc()
	}
}

func (m *ServerMetrics) ObserveFusion(resultCount int) {
	m.fusedResults.WithLabelValues(m.service).Observe(float64(resultCount))
}

func (m *ServerMetrics) ObserveTurn(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.turnsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *ServerMetrics) ObserveIntentMatch(matched bool) {
	result := "miss"
	if matched {
		result = "hit"
	}
	m.intentMatchesTotal.WithLabelValues(m.service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
