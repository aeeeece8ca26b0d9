package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	EnvelopesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "envelopes_received_total",
			Help:      "Envelopes received on the listen channel, by type.",
		},
		[]string{"type"},
	)

	ResultsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "results_published_total",
			Help:      "Result envelopes published back to callers, by outcome.",
		},
		[]string{"outcome"},
	)

	HeartbeatRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "heartbeat_refreshes_total",
			Help:      "Heartbeat key refreshes, by result.",
		},
		[]string{"result"},
	)

	DroppedEnvelopes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "dropped_envelopes_total",
			Help:      "Inbound payloads dropped before dispatch (decode failures, misrouted channels).",
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "courier",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(EnvelopesReceived, ResultsPublished, HeartbeatRefreshes, DroppedEnvelopes, uptime)
}

// MetricsHandler exposes the courier registry for mounting on /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
