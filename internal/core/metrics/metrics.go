package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the core dispatcher.
type Metrics struct {
	// Dispatch outcomes by operation and failure tag ("ok" on success)
	DispatchOutcome *prometheus.CounterVec

	// Transferability results by numeric code name
	TransferResult *prometheus.CounterVec

	// Evaluation latency, oracle snapshot included
	DispatchLatency prometheus.Histogram

	// Audit records touched by committed transfers
	AuditRecords *prometheus.CounterVec

	// Delegates currently registered
	DelegatesRegistered prometheus.Gauge
}

// New registers the core metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DispatchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokencore_dispatch_total",
			Help: "Total core dispatches by operation and outcome",
		}, []string{"operation", "outcome"}),

		TransferResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokencore_transfer_results_total",
			Help: "Transferability results by result code",
		}, []string{"result"}),

		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokencore_dispatch_duration_seconds",
			Help:    "Duration of a dispatched operation including its transaction",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		AuditRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokencore_audit_records_total",
			Help: "Audit records written by committed transfers",
		}, []string{"change"}), // change: "created", "updated"

		DelegatesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tokencore_delegates_registered",
			Help: "Number of delegate ids with an implementation",
		}),
	}
}

// IncrementDispatch records a dispatch outcome.
func (m *Metrics) IncrementDispatch(operation, outcome string) {
	if m != nil {
		m.DispatchOutcome.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementTransferResult records a transferability result.
func (m *Metrics) IncrementTransferResult(result string) {
	if m != nil {
		m.TransferResult.WithLabelValues(result).Inc()
	}
}

// ObserveDispatchLatency records the duration of one dispatch.
func (m *Metrics) ObserveDispatchLatency(d time.Duration) {
	if m != nil {
		m.DispatchLatency.Observe(d.Seconds())
	}
}

// AddAuditRecords counts created and updated audit records.
func (m *Metrics) AddAuditRecords(created, updated int) {
	if m == nil {
		return
	}
	if created > 0 {
		m.AuditRecords.WithLabelValues("created").Add(float64(created))
	}
	if updated > 0 {
		m.AuditRecords.WithLabelValues("updated").Add(float64(updated))
	}
}

// SetDelegatesRegistered sets the registered delegate gauge.
func (m *Metrics) SetDelegatesRegistered(n int) {
	if m != nil {
		m.DelegatesRegistered.Set(float64(n))
	}
}
