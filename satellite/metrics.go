package satellite

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestrator activity. A nil *Metrics is a no-op.
type Metrics struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropwatch",
			Subsystem: "satellite",
			Name:      "provider_calls_total",
			Help:      "Provider invocations by outcome (ok, no_data, transport, auth, quota, decode).",
		}, []string{"provider", "operation", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cropwatch",
			Subsystem: "satellite",
			Name:      "provider_call_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropwatch",
			Subsystem: "satellite",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by call kind and result (hit, miss).",
		}, []string{"call", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.providerCalls, m.providerLatency, m.cacheLookups)
	}
	return m
}

func (m *Metrics) observeCall(provider, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, op, outcome).Inc()
	m.providerLatency.WithLabelValues(provider, op).Observe(d.Seconds())
}

func (m *Metrics) cacheHit(call string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(call, "hit").Inc()
}

func (m *Metrics) cacheMiss(call string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(call, "miss").Inc()
}
