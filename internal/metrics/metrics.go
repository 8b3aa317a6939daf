package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "entitlements"

const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeCapped    = "capped"
	OutcomeSkipped   = "skipped"
	OutcomeContended = "contended"
	OutcomeError     = "error"
)

// Metrics holds the ledger instruments. A nil *Metrics records nothing.
type Metrics struct {
	deductions      *prometheus.CounterVec
	lockContentions *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	billingCharges  *prometheus.CounterVec
	resetRows       *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deductions_total",
			Help:      "Usage deductions by outcome.",
		}, []string{"outcome"}),
		lockContentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contentions_total",
			Help:      "Requests that failed fast because the feature lock was held.",
		}, []string{"operation"}),
		operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of balance operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		billingCharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_charges_total",
			Help:      "Proration charges sent to the billing provider.",
		}, []string{"outcome"}),
		resetRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reset_rows_total",
			Help:      "Ledger rows handled by the period reset job.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.deductions, m.lockContentions, m.operationTime, m.billingCharges, m.resetRows,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveDeduction(outcome string) {
	if m == nil {
		return
	}
	m.deductions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLockContention(operation string) {
	if m == nil {
		return
	}
	m.lockContentions.WithLabelValues(operation).Inc()
}

// ObserveOperation records the time since start under operation and outcome.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.operationTime.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveBillingCharge(outcome string) {
	if m == nil {
		return
	}
	m.billingCharges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResetRow(outcome string) {
	if m == nil {
		return
	}
	m.resetRows.WithLabelValues(outcome).Inc()
}
