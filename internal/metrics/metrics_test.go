package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveDeduction(OutcomeSuccess)
	m.ObserveDeduction(OutcomeSuccess)
	m.ObserveDeduction(OutcomeRejected)
	m.ObserveLockContention("deduct")
	m.ObserveBillingCharge(OutcomeError)
	m.ObserveResetRow(OutcomeSuccess)
	m.ObserveOperation("deduct", OutcomeSuccess, time.Now().Add(-10*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deductions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deductions.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContentions.WithLabelValues("deduct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.billingCharges.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resetRows.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationTime))
}

func TestMetricsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDeduction(OutcomeSuccess)
		m.ObserveLockContention("deduct")
		m.ObserveOperation("deduct", OutcomeSuccess, time.Now())
		m.ObserveBillingCharge(OutcomeSuccess)
		m.ObserveResetRow(OutcomeError)
	})
}
