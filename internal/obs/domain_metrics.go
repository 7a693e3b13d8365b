package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TrackerPollsTotal counts poll attempts by outcome
	// (updated, unchanged, stale, not_found, error).
	TrackerPollsTotal *prometheus.CounterVec
	// TrackerActive tracks the number of batches currently being polled.
	TrackerActive prometheus.Gauge
	// TrackerStoppedTotal counts tracker stops by cause
	// (terminal, ceiling, not_found, manual).
	TrackerStoppedTotal *prometheus.CounterVec
	// ReconcileRunsTotal counts reconciliation runs by trigger
	// (manual, submit_retry).
	ReconcileRunsTotal *prometheus.CounterVec
	// ReconcileDriftTotal counts line items whose price drifted beyond
	// tolerance during reconciliation.
	ReconcileDriftTotal prometheus.Counter
	// OrderSubmitTotal counts order submissions by result
	// (accepted, price_mismatch, rejected, error).
	OrderSubmitTotal *prometheus.CounterVec
	// CancelRequestsTotal counts cancellation requests by result
	// (cancelled, too_late, not_found, error).
	CancelRequestsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TrackerPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_polls_total",
			Help:      "Count of batch status poll attempts by outcome.",
		}, []string{"result"})
		TrackerActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracker_active_batches",
			Help:      "Number of batches currently tracked for status updates.",
		})
		TrackerStoppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_stopped_total",
			Help:      "Count of tracker stops by cause.",
		}, []string{"cause"})
		ReconcileRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Count of price reconciliation runs by trigger.",
		}, []string{"trigger"})
		ReconcileDriftTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_drift_total",
			Help:      "Line items repriced beyond tolerance during reconciliation.",
		})
		OrderSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submit_total",
			Help:      "Count of order submissions by result.",
		}, []string{"result"})
		CancelRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_requests_total",
			Help:      "Count of batch cancellation requests by result.",
		}, []string{"result"})

		registerCollector(reg, TrackerPollsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TrackerPollsTotal = v
			}
		})
		registerCollector(reg, TrackerActive, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				TrackerActive = v
			}
		})
		registerCollector(reg, TrackerStoppedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TrackerStoppedTotal = v
			}
		})
		registerCollector(reg, ReconcileRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconcileRunsTotal = v
			}
		})
		registerCollector(reg, ReconcileDriftTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReconcileDriftTotal = v
			}
		})
		registerCollector(reg, OrderSubmitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderSubmitTotal = v
			}
		})
		registerCollector(reg, CancelRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CancelRequestsTotal = v
			}
		})
	})
}
