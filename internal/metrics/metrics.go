// Package metrics exposes Prometheus instrumentation for the video pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. All methods are safe on a nil receiver
// so instrumentation can be left unwired in tests.
type Metrics struct {
	registry *prometheus.Registry

	framesCaptured   prometheus.Counter
	branchFrames     *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	detectionCycles  prometheus.Counter
	detectionErrors  prometheus.Counter
	inferenceLatency prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.framesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecam_frames_captured_total",
		Help: "Frames read from the camera source.",
	})
	m.branchFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecam_branch_frames_total",
		Help: "Frames delivered to each pipeline branch.",
	}, []string{"branch"})
	m.framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecam_frames_dropped_total",
		Help: "Frames dropped by the per-branch bounded queues.",
	}, []string{"branch"})
	m.detectionCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecam_detection_cycles_total",
		Help: "Completed detection worker iterations.",
	})
	m.detectionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecam_detection_errors_total",
		Help: "Detection worker iterations that failed and were recovered.",
	})
	m.inferenceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgecam_inference_latency_seconds",
		Help:    "Wall time of a single Detector.Detect call.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	m.registry.MustRegister(
		m.framesCaptured,
		m.branchFrames,
		m.framesDropped,
		m.detectionCycles,
		m.detectionErrors,
		m.inferenceLatency,
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCaptured() {
	if m == nil {
		return
	}
	m.framesCaptured.Inc()
}

func (m *Metrics) IncBranchFrame(branch string) {
	if m == nil {
		return
	}
	m.branchFrames.WithLabelValues(branch).Inc()
}

func (m *Metrics) IncDropped(branch string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(branch).Inc()
}

func (m *Metrics) IncDetectionCycle() {
	if m == nil {
		return
	}
	m.detectionCycles.Inc()
}

func (m *Metrics) IncDetectionError() {
	if m == nil {
		return
	}
	m.detectionErrors.Inc()
}

func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.inferenceLatency.Observe(d.Seconds())
}
