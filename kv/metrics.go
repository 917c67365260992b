package kv

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus metrics. A nil *Metrics disables
// instrumentation; all recording methods are nil-safe.
type Metrics struct {
	Requests        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all service metrics with the provided
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvserve_requests_total",
			Help: "Requests by operation and semantic status",
		}, []string{"op", "status"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvserve_store_op_duration_seconds",
			Help:    "Backing-store operation latency (queueing and connection wait included)",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"op"}),
	}
	reg.MustRegister(m.Requests, m.StoreOpDuration)
	return m
}

func (m *Metrics) observeRequest(op string, st Status) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, st.String()).Inc()
}

func (m *Metrics) observeStoreOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreOpDuration.WithLabelValues(op).Observe(d.Seconds())
}
