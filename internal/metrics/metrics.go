// Package metrics exposes Prometheus instrumentation for the capture
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture pipeline
type Metrics struct {
	// Audio path
	FramesProcessed prometheus.Counter
	FramesDropped   prometheus.Counter

	// Wake word
	WakeEventsFired   prometheus.Counter
	WakeEventsIgnored prometheus.Counter
	WakeScore         prometheus.Histogram

	// Capture sessions
	SessionsStarted  *prometheus.CounterVec // by kind: manual|wake
	SessionsFinished *prometheus.CounterVec // by outcome: handed_off|empty|error
	SessionDuration  prometheus.Histogram
	EndpointReasons  *prometheus.CounterVec // by reason: silence|transcript_stale|release

	// Transcription
	BackendFallbacks prometheus.Counter
	BackendFailures  prometheus.Counter
}

// New creates and registers all pipeline metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_frames_processed_total",
			Help: "Total number of audio frames fanned out to consumers",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_frames_dropped_total",
			Help: "Frames dropped on the session feed due to backpressure",
		}),
		WakeEventsFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_wake_events_fired_total",
			Help: "Wake events accepted and turned into capture sessions",
		}),
		WakeEventsIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_wake_events_ignored_total",
			Help: "Wake events dropped because a session was already active",
		}),
		WakeScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_wake_score",
			Help:    "Scores of fired wake events",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_sessions_started_total",
			Help: "Capture sessions started",
		}, []string{"kind"}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_sessions_finished_total",
			Help: "Capture sessions finished",
		}, []string{"outcome"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_session_duration_seconds",
			Help:    "Duration of capture sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		EndpointReasons: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_endpoint_reasons_total",
			Help: "Why capture sessions ended",
		}, []string{"reason"}),
		BackendFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_backend_fallbacks_total",
			Help: "Sessions that fell back to the server transcription backend",
		}),
		BackendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_backend_failures_total",
			Help: "Transcription backend failures terminating a session",
		}),
	}
}
