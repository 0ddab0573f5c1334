package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "storefront"
	metricsSubsystem = "outbound"
)

// Attempt outcomes recorded by HTTPClient.
const (
	outcomeRejected  = "rejected"
	outcomeResponse  = "response"
	outcomeRetryable = "retryable_status"
	outcomeError     = "error"
)

var (
	// BreakerState is 0 while closed, 1 while open and 2 while half-open.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_state",
		Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state changes per upstream.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_opened_total",
		Help:      "Times an upstream breaker tripped open.",
	}, []string{"target"})

	OutboundAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempts_total",
		Help:      "Calls to upstreams such as the checkout session function, by outcome.",
	}, []string{"target", "outcome"})

	// OutboundDuration excludes attempts the breaker rejected.
	OutboundDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempt_duration_seconds",
		Help:      "Latency of a single upstream attempt.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundAttempts, OutboundDuration)
}

func observeAttempt(target, outcome string, started time.Time) {
	OutboundAttempts.WithLabelValues(target, outcome).Inc()
	if outcome != outcomeRejected && !started.IsZero() {
		OutboundDuration.WithLabelValues(target).Observe(time.Since(started).Seconds())
	}
}
