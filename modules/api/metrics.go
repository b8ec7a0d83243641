package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "radiogo"
	metricsSubsystem = "api"
)

type metrics struct {
	uploads     *prometheus.CounterVec
	uploadBytes prometheus.Counter
	streams     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "uploads_total",
			Help:      "Uploaded files by result.",
		}, []string{"result"}),
		uploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "upload_bytes_total",
			Help:      "Bytes saved to the library through uploads.",
		}),
		streams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "streams_total",
			Help:      "Stream requests by framing.",
		}, []string{"framing"}),
	}
}
