// Package metrics exposes Prometheus counters for authorization decisions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate decisions
const (
	GateSkip         = "skip"
	GatePass         = "pass"
	GateNoToken      = "no_token"
	GateInvalidToken = "invalid_token"
)

// Guard outcomes
const (
	GuardAllowed   = "allowed"
	GuardNoSession = "no_session"
	GuardDenied    = "denied"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	gate   *prometheus.CounterVec
	guard  *prometheus.CounterVec
	lookup *prometheus.HistogramVec
}

// Option configures New
type Option func(*options)

type options struct {
	namespace string
}

// WithNamespace sets the metrics namespace (default "memorialqr").
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Metrics, error) {
	o := options{namespace: "memorialqr"}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "gate_decisions_total",
			Help:      "Request gate decisions by outcome.",
		}, []string{"decision"}),
		guard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by requirement and outcome.",
		}, []string{"requirement", "outcome"}),
		lookup: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "session_lookup_seconds",
			Help:      "Latency of session store lookups.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.gate, m.guard, m.lookup} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Gate counts one request gate decision
func (m *Metrics) Gate(decision string) {
	if m == nil {
		return
	}
	m.gate.WithLabelValues(decision).Inc()
}

// Guard counts one route guard decision
func (m *Metrics) Guard(requirement, outcome string) {
	if m == nil {
		return
	}
	m.guard.WithLabelValues(requirement, outcome).Inc()
}

// Lookup records how long a store call of the given kind took
func (m *Metrics) Lookup(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookup.WithLabelValues(kind).Observe(d.Seconds())
}
