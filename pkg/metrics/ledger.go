package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts ledger outcomes worth alerting on.
type LedgerMetrics struct {
	transitions     *prometheus.CounterVec
	reversals       prometheus.Counter
	reconciliations *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
	tampered        prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer. A
// nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_invoice_transitions_total",
		Help: "Invoice status transitions by source and target status.",
	}, []string{"from", "to"})
	reversals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_invoice_reversals_total",
		Help: "Reversal documents issued.",
	})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payment_checks_total",
		Help: "Payment reconciliation attempts by outcome.",
	}, []string{"status"})
	stockRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_stock_rejections_total",
		Help: "Stock deductions refused for insufficient quantity.",
	}, []string{"pool"})
	tampered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_fingerprint_mismatches_total",
		Help: "Invoices whose recomputed fingerprint differs from the stored one.",
	})
	reg.MustRegister(transitions, reversals, reconciliations, stockRejections, tampered)
	return &LedgerMetrics{
		transitions:     transitions,
		reversals:       reversals,
		reconciliations: reconciliations,
		stockRejections: stockRejections,
		tampered:        tampered,
	}
}

func (m *LedgerMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(labelValue(from), labelValue(to)).Inc()
}

func (m *LedgerMetrics) IncReversal() {
	if m == nil || m.reversals == nil {
		return
	}
	m.reversals.Inc()
}

func (m *LedgerMetrics) IncPaymentCheck(status string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(labelValue(status)).Inc()
}

func (m *LedgerMetrics) IncStockRejection(pool string) {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.WithLabelValues(labelValue(pool)).Inc()
}

func (m *LedgerMetrics) IncFingerprintMismatch() {
	if m == nil || m.tampered == nil {
		return
	}
	m.tampered.Inc()
}
