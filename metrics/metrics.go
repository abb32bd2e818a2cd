// Package metrics defines the Prometheus counters and gauges for request
// lifecycle counts by provider and operation, retry/reauth counts, and the
// VFS inode/cache gauges. No other package in this module records into them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric this module emits under one Prometheus
// registerer, so a caller (typically the daemon's /metrics handler) can
// register them all in one call instead of relying on the default global
// registry.
type Registry struct {
	RequestsStarted *prometheus.CounterVec
	RequestsDone    *prometheus.CounterVec
	RequestRetries  *prometheus.CounterVec
	RequestReauths  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	VFSInodes    prometheus.Gauge
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheEvicted prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RequestsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Name:      "requests_started_total",
			Help:      "Provider requests started, by provider label and operation.",
		}, []string{"provider", "op"}),

		RequestsDone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Name:      "requests_done_total",
			Help:      "Provider requests reaching a terminal state, by provider, operation and outcome.",
		}, []string{"provider", "op", "outcome"}),

		RequestRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Name:      "request_retries_total",
			Help:      "Retry attempts issued by the request engine, by provider and operation.",
		}, []string{"provider", "op"}),

		RequestReauths: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Name:      "request_reauths_total",
			Help:      "Reauth-and-retry cycles triggered on a 401, by provider.",
		}, []string{"provider"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cloudkit",
			Name:      "request_duration_seconds",
			Help:      "Time from request start to terminal state, by provider and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),

		VFSInodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudkit",
			Name:      "vfs_inodes",
			Help:      "Number of inodes currently held in the VFS tree.",
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Subsystem: "directory_cache",
			Name:      "hits_total",
			Help:      "Directory listing cache hits.",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Subsystem: "directory_cache",
			Name:      "misses_total",
			Help:      "Directory listing cache misses.",
		}),

		CacheEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudkit",
			Subsystem: "directory_cache",
			Name:      "evicted_total",
			Help:      "Directory listing cache entries evicted, by age or by size pressure.",
		}),
	}
}

// Outcome labels used with RequestsDone.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Timer measures one request's duration for RequestDuration, reported via
// ObserveDone once the request reaches a terminal state.
type Timer struct {
	reg      *Registry
	provider string
	op       string
	started  time.Time
}

// StartRequest records a request start and returns a Timer whose
// ObserveDone call reports both the duration and the terminal outcome.
// reg may be nil, in which case StartRequest and the returned Timer's
// methods are no-ops; this lets callers unconditionally instrument code
// paths that run in tests without a registry wired up.
func (r *Registry) StartRequest(provider, op string) *Timer {
	if r == nil {
		return nil
	}
	r.RequestsStarted.WithLabelValues(provider, op).Inc()
	return &Timer{reg: r, provider: provider, op: op, started: time.Now()}
}

// ObserveDone records the terminal outcome and elapsed duration. Safe to
// call on a nil Timer (StartRequest returned nil).
func (t *Timer) ObserveDone(outcome string) {
	if t == nil {
		return
	}
	t.reg.RequestsDone.WithLabelValues(t.provider, t.op, outcome).Inc()
	t.reg.RequestDuration.WithLabelValues(t.provider, t.op).Observe(time.Since(t.started).Seconds())
}

// RecordRetry increments the retry counter for one provider+op pair. Safe
// to call on a nil Registry.
func (r *Registry) RecordRetry(provider, op string) {
	if r == nil {
		return
	}
	r.RequestRetries.WithLabelValues(provider, op).Inc()
}

// RecordReauth increments the reauth counter for one provider. Safe to
// call on a nil Registry.
func (r *Registry) RecordReauth(provider string) {
	if r == nil {
		return
	}
	r.RequestReauths.WithLabelValues(provider).Inc()
}
