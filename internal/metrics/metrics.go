// Package metrics exposes the worker's operational counters via Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all worker metrics backed by a private registry.
type Metrics struct {
	FramesRead      prometheus.Counter
	FramesPublished prometheus.Counter
	ReadErrors      prometheus.Counter
	Reconnects      prometheus.Counter

	InferenceRuns      prometheus.Counter
	InferenceErrors    prometheus.Counter
	EventsCreated      prometheus.Counter
	CooldownSuppressed prometheus.Counter

	BridgeFrames     prometheus.Counter
	BridgeDetections prometheus.Counter
	BridgeDropped    prometheus.Counter
	BridgeDecodeErrs prometheus.Counter

	ActiveStreams prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_frames_read_total",
			Help: "Frames read from camera sources",
		}),
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_frames_published_total",
			Help: "Encoded frames published to the broadcast hub",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_read_errors_total",
			Help: "Frame read or connect failures",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_reconnects_total",
			Help: "Stream reconnect attempts",
		}),
		InferenceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_inference_runs_total",
			Help: "Inference calls issued by the detection loop",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_inference_errors_total",
			Help: "Failed inference calls",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_events_created_total",
			Help: "Detection events persisted and fanned out",
		}),
		CooldownSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_cooldown_suppressed_total",
			Help: "Detections discarded by the cooldown gate",
		}),
		BridgeFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_bridge_frames_total",
			Help: "Frame messages received over the bridge",
		}),
		BridgeDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_bridge_detections_total",
			Help: "Detection messages received over the bridge",
		}),
		BridgeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_bridge_dropped_total",
			Help: "Bridge messages dropped because the ingest queue was full",
		}),
		BridgeDecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_bridge_decode_errors_total",
			Help: "Bridge messages rejected as malformed",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_active_streams",
			Help: "Supervisors currently running",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FramesRead, m.FramesPublished, m.ReadErrors, m.Reconnects,
		m.InferenceRuns, m.InferenceErrors, m.EventsCreated, m.CooldownSuppressed,
		m.BridgeFrames, m.BridgeDetections, m.BridgeDropped, m.BridgeDecodeErrs,
		m.ActiveStreams,
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
