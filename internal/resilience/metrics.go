package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState exposes the current breaker state per target
	// (0=closed, 1=open, 2=half_open).
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state transitions per target.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts how many times a breaker tripped open.
	BreakerOpenedTotal *prometheus.CounterVec
	// UpstreamRetriesTotal counts HTTP retries per target.
	UpstreamRetriesTotal *prometheus.CounterVec
)

// MustRegisterMetrics registers breaker metrics on the provided registerer.
// Re-registration is tolerated so tests can call it repeatedly.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	BreakerState = registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open).",
	}, []string{"target"})

	BreakerTransitions = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"target", "from_state", "to_state"})

	BreakerOpenedTotal = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "breaker_opened_total",
		Help: "Times a circuit breaker tripped open.",
	}, []string{"target"})

	UpstreamRetriesTotal = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "HTTP request retries against an upstream target.",
	}, []string{"target"})
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return vec
}

func registerGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		panic(err)
	}
	return vec
}
