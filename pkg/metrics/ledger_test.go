package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.IncTransition("sent", "paid")
	m.IncTransition("sent", "paid")
	m.IncReversal()
	m.IncPaymentCheck("mismatch")
	m.IncStockRejection("consignment")
	m.IncFingerprintMismatch()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	transitions := findMetricFamily(mfs, "ledger_invoice_transitions_total")
	require.NotNil(t, transitions)
	require.Len(t, transitions.GetMetric(), 1)
	assert.Equal(t, 2.0, transitions.GetMetric()[0].GetCounter().GetValue())
	assert.True(t, matchesLabel(transitions.GetMetric()[0].GetLabel(), "from", "sent"))
	assert.True(t, matchesLabel(transitions.GetMetric()[0].GetLabel(), "to", "paid"))

	got, err := fetchCounterValue(mfs, "ledger_payment_checks_total", "status", "mismatch")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "ledger_stock_rejections_total", "pool", "consignment")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	assert.Equal(t, 1.0, singleCounter(t, mfs, "ledger_invoice_reversals_total"))
	assert.Equal(t, 1.0, singleCounter(t, mfs, "ledger_fingerprint_mismatches_total"))
}

func TestLedgerMetricsLabelBlankValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.IncPaymentCheck(" ")
	m.IncStockRejection("")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "ledger_payment_checks_total", "status", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	got, err = fetchCounterValue(mfs, "ledger_stock_rejections_total", "pool", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncReversal()
	m.IncTransition("", "")
	NewLedgerMetrics(nil).IncFingerprintMismatch()
}

func singleCounter(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	require.NotNil(t, mf, "metric %s", name)
	require.Len(t, mf.GetMetric(), 1)
	return mf.GetMetric()[0].GetCounter().GetValue()
}
