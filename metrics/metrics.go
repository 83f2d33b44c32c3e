// Package metrics exposes Prometheus collectors for the VAB interface and the
// dispatch loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the bridge's collectors.
	Registry = prometheus.NewRegistry()

	vabRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vab_bridge",
			Subsystem: "vab",
			Name:      "requests_total",
			Help:      "Total number of VAB requests by opcode and result code.",
		},
		[]string{"opcode", "result"},
	)

	vabDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vab_bridge",
			Subsystem: "vab",
			Name:      "request_duration_seconds",
			Help:      "Duration of VAB requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"opcode"},
	)

	dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vab_bridge",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Total number of dispatched messages by type tag and outcome.",
		},
		[]string{"type", "outcome"},
	)

	transformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vab_bridge",
			Subsystem: "dispatch",
			Name:      "transform_duration_seconds",
			Help:      "Duration of transformer calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"type"},
	)

	averageLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vab_bridge",
			Subsystem: "dispatch",
			Name:      "average_latency_milliseconds",
			Help:      "Rolling average latency attached to outbound messages.",
		},
	)
)

func init() {
	Registry.MustRegister(vabRequests, vabDuration, dispatched, transformDuration, averageLatency)
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordVABRequest counts one VAB request.
func RecordVABRequest(opcode, result string, d time.Duration) {
	vabRequests.WithLabelValues(opcode, result).Inc()
	vabDuration.WithLabelValues(opcode).Observe(d.Seconds())
}

// Outcomes of a dispatched message.
const (
	OutcomeOK          = "ok"
	OutcomeControl     = "control"
	OutcomeDecodeError = "decode_error"
	OutcomeNoHandler   = "no_handler"
	OutcomeError       = "error"
	OutcomeDropped     = "dropped"
)

// RecordDispatch counts one dispatched message.
func RecordDispatch(typeTag, outcome string) {
	dispatched.WithLabelValues(typeTag, outcome).Inc()
}

// RecordTransform observes one transformer call and the resulting average.
func RecordTransform(typeTag string, d time.Duration, avgMillis int64) {
	transformDuration.WithLabelValues(typeTag).Observe(d.Seconds())
	averageLatency.Set(float64(avgMillis))
}
