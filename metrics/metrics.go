// Package metrics exposes scheduler and bucket state as Prometheus
// gauges/counters for GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the gateway's Prometheus collectors.
type Recorder struct {
	QueueDepth        prometheus.Gauge
	AvailableKeys     prometheus.Gauge
	TotalKeys         prometheus.Gauge
	DispatchTotal     *prometheus.CounterVec
	DispatchLatencyMs prometheus.Histogram
	BucketTokensLeft  *prometheus.GaugeVec
	BucketRequestsLeft *prometheus.GaugeVec
}

// NewRecorder registers every collector against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_queue_depth",
			Help: "Current number of requests waiting in the scheduler backlog.",
		}),
		AvailableKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_available_keys",
			Help: "Number of provider keys currently reporting headroom.",
		}),
		TotalKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_total_keys",
			Help: "Total number of provider keys registered.",
		}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_dispatch_total",
			Help: "Count of dispatch outcomes by provider and result kind.",
		}, []string{"provider", "outcome"}),
		DispatchLatencyMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conductor_dispatch_latency_ms",
			Help:    "Latency of upstream dispatch calls in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
		BucketTokensLeft: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conductor_bucket_tokens_remaining",
			Help: "Tokens remaining in the current window, per provider/key.",
		}, []string{"provider", "key"}),
		BucketRequestsLeft: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conductor_bucket_requests_remaining",
			Help: "Requests remaining in the current window, per provider/key.",
		}, []string{"provider", "key"}),
	}
}

// ObserveDispatch records the outcome of one dispatch attempt.
func (r *Recorder) ObserveDispatch(providerName, outcome string, latencyMs float64) {
	r.DispatchTotal.WithLabelValues(providerName, outcome).Inc()
	r.DispatchLatencyMs.Observe(latencyMs)
}

// SetBucketGauge records the current remaining counters for one key.
func (r *Recorder) SetBucketGauge(providerName, keyName string, tokensRemaining, requestsRemaining int) {
	r.BucketTokensLeft.WithLabelValues(providerName, keyName).Set(float64(tokensRemaining))
	r.BucketRequestsLeft.WithLabelValues(providerName, keyName).Set(float64(requestsRemaining))
}
