package connpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pool's Prometheus metrics. A nil *Metrics disables
// instrumentation; all recording methods are nil-safe.
type Metrics struct {
	InUse        prometheus.Gauge
	Idle         prometheus.Gauge
	AcquireWait  prometheus.Histogram
	AcquireTotal prometheus.Counter
}

// NewMetrics creates and registers all pool metrics with the provided
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvserve_connpool_in_use",
			Help: "Connections currently checked out of the pool",
		}),
		Idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvserve_connpool_idle",
			Help: "Connections currently idle in the pool",
		}),
		AcquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvserve_connpool_acquire_wait_seconds",
			Help:    "Time spent waiting for a pooled connection",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		AcquireTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvserve_connpool_acquired_total",
			Help: "Total successful connection acquisitions",
		}),
	}
	reg.MustRegister(m.InUse, m.Idle, m.AcquireWait, m.AcquireTotal)
	return m
}

func (m *Metrics) acquired(wait time.Duration) {
	if m == nil {
		return
	}
	m.AcquireTotal.Inc()
	m.AcquireWait.Observe(wait.Seconds())
	m.InUse.Inc()
	m.Idle.Dec()
}

func (m *Metrics) released() {
	if m == nil {
		return
	}
	m.InUse.Dec()
	m.Idle.Inc()
}

func (m *Metrics) setIdle(n int) {
	if m == nil {
		return
	}
	m.Idle.Set(float64(n))
}
