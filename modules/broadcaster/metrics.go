package broadcaster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "radiogo"
	metricsSubsystem = "broadcaster"
)

type metrics struct {
	listeners       prometheus.Gauge
	sessions        prometheus.Counter
	sessionFailures *prometheus.CounterVec
	broadcastBytes  prometheus.Counter
	catchupBytes    prometheus.Counter
	tracksStarted   prometheus.Counter
	trackSkips      *prometheus.CounterVec
	catalogTracks   prometheus.Gauge
	rescans         *prometheus.CounterVec
}

// newMetrics registers on reg; a nil reg leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		listeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "listeners",
			Help:      "Listener sessions currently connected.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_total",
			Help:      "Listener sessions created.",
		}),
		sessionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "session_failures_total",
			Help:      "Listener sessions torn down by a failure.",
		}, []string{"reason"}),
		broadcastBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "broadcast_bytes_total",
			Help:      "Bytes read from tracks and published to listeners.",
		}),
		catchupBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "catchup_bytes_total",
			Help:      "Bytes streamed to joining listeners before they reached the live position.",
		}),
		tracksStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tracks_started_total",
			Help:      "Tracks put on air.",
		}),
		trackSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "track_skips_total",
			Help:      "Tracks skipped or cut short.",
		}, []string{"reason"}),
		catalogTracks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "catalog_tracks",
			Help:      "Tracks in the catalog.",
		}),
		rescans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "catalog_rescans_total",
			Help:      "Catalog rescans by result.",
		}, []string{"result"}),
	}
}
