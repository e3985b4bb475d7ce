package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus. Metrics are
// registered on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	assignments       prometheus.Counter
	allocationLatency prometheus.Histogram
	submissions       prometheus.Counter
	resolved          *prometheus.CounterVec
	reviews           *prometheus.CounterVec
	retries           *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector. A nil registerer means
// prometheus.DefaultRegisterer and an empty namespace means "annoline".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "annoline"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.assignments = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "assignments_created_total",
			Help:      "Total assignments handed out to annotators.",
		})
		p.allocationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "allocation_latency_seconds",
			Help:      "Latency of allocation requests in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		})
		p.submissions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "submission",
			Name:      "submissions_total",
			Help:      "Total annotation submissions accepted.",
		})
		p.resolved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "consensus",
			Name:      "items_resolved_total",
			Help:      "Total data items closed by resolution (consensus, no_consensus, reviewed).",
		}, []string{"resolution"})
		p.reviews = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Total reviewer decisions by outcome.",
		}, []string{"decision"})
		p.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "conflict_retries_total",
			Help:      "Total transactions retried after a busy database or a stale item version.",
		}, []string{"op"})

		p.reg.MustRegister(p.assignments, p.allocationLatency, p.submissions, p.resolved, p.reviews, p.retries)
	})
}

func (p *PrometheusCollector) AssignmentsCreated(n int) {
	p.ensureRegistered()
	if n > 0 {
		p.assignments.Add(float64(n))
	}
}

func (p *PrometheusCollector) AllocationLatency(seconds float64) {
	p.ensureRegistered()
	p.allocationLatency.Observe(seconds)
}

func (p *PrometheusCollector) SubmissionRecorded() {
	p.ensureRegistered()
	p.submissions.Inc()
}

func (p *PrometheusCollector) ItemResolved(resolution string) {
	p.ensureRegistered()
	p.resolved.WithLabelValues(resolution).Inc()
}

func (p *PrometheusCollector) Reviewed(decision string) {
	p.ensureRegistered()
	p.reviews.WithLabelValues(decision).Inc()
}

func (p *PrometheusCollector) ConflictRetry(op string) {
	p.ensureRegistered()
	p.retries.WithLabelValues(op).Inc()
}
