package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aacc", Name: "gate_rejections_total", Help: "Requests rejected per pipeline gate"},
		[]string{"gate"},
	)
	Violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aacc", Name: "violations_total", Help: "Abuse violations recorded"},
		[]string{"reason"},
	)
	Blocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aacc", Name: "blocks_total", Help: "IP blocks created"},
		[]string{"source"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aacc", Name: "cache_events_total", Help: "Response cache hits and misses"},
		[]string{"result"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aacc",
			Name:      "http_duration_seconds",
			Help:      "Latency of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(GateRejections)
	prometheus.MustRegister(Violations)
	prometheus.MustRegister(Blocks)
	prometheus.MustRegister(CacheEvents)
	prometheus.MustRegister(HTTPDuration)
}
