package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder labels counters by type/kind/chain and latency
// observations by operation/kind/chain, so a bridge-pipeline payment and
// a direct-monitor payment on the same chain are distinguishable in the
// same dashboard. kind/chain mirror the labels the monitors actually
// pass — "direct"/"bridge" and the settlement chain tag.
type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railclaw",
			Name:      "events_total",
			Help:      "railclaw event counters",
		},
		[]string{"type", "kind", "chain"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "railclaw",
			Name:      "latency_seconds",
			Help:      "railclaw operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "kind", "chain"},
	)

	prometheus.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":  name,
		"kind":  labels["kind"],
		"chain": labels["chain"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"kind":      labels["kind"],
		"chain":     labels["chain"],
	}).Observe(d.Seconds())
}
