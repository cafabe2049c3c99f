// Package metrics provides observability for the control domain.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the operation lifecycle from initiation to confirmation.
type Metrics struct {
	// Operations sent through the relay, by kind
	Initiated *prometheus.CounterVec

	// Confirmations applied, by kind and outcome
	Confirmed *prometheus.CounterVec

	// Confirmations that matched no pending operation
	UnknownConfirmations prometheus.Counter

	// Redundant confirmations ignored by the idempotent apply
	DuplicateConfirmations prometheus.Counter

	// Snapshots rejected by the monotonic state cache
	SnapshotsRejected prometheus.Counter

	// Unconfirmed operations past the stale threshold, sampled by the sweep
	StalePending prometheus.Gauge

	// Round-trip latency from initiation to confirmation
	ConfirmLatency *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Initiated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultbridge_control_operations_initiated_total",
			Help: "Operations sent to the execution domain by kind",
		}, []string{"kind"}),

		Confirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultbridge_control_operations_confirmed_total",
			Help: "Confirmations applied to the pending ledger by kind and outcome",
		}, []string{"kind", "outcome"}),

		UnknownConfirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_control_unknown_confirmations_total",
			Help: "Confirmations referencing a message ID absent from the ledger",
		}),

		DuplicateConfirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_control_duplicate_confirmations_total",
			Help: "Redelivered confirmations ignored by the idempotent apply",
		}),

		SnapshotsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_control_snapshots_rejected_total",
			Help: "State snapshots rejected for carrying a stale source timestamp",
		}),

		StalePending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vaultbridge_control_stale_pending_operations",
			Help: "Unconfirmed operations older than the stale threshold",
		}),

		ConfirmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultbridge_control_confirm_latency_seconds",
			Help:    "Time from operation initiation to confirmation arrival",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800, 3600},
		}, []string{"kind"}),
	}
}

// IncrementInitiated records a sent operation.
func (m *Metrics) IncrementInitiated(kind string) {
	if m != nil {
		m.Initiated.WithLabelValues(kind).Inc()
	}
}

// IncrementConfirmed records an applied confirmation.
func (m *Metrics) IncrementConfirmed(kind, outcome string) {
	if m != nil {
		m.Confirmed.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncrementUnknownConfirmation() {
	if m != nil {
		m.UnknownConfirmations.Inc()
	}
}

func (m *Metrics) IncrementDuplicateConfirmation() {
	if m != nil {
		m.DuplicateConfirmations.Inc()
	}
}

func (m *Metrics) IncrementSnapshotRejected() {
	if m != nil {
		m.SnapshotsRejected.Inc()
	}
}

func (m *Metrics) SetStalePending(n int) {
	if m != nil {
		m.StalePending.Set(float64(n))
	}
}

// ObserveConfirmLatency records the initiation-to-confirmation round trip.
func (m *Metrics) ObserveConfirmLatency(kind string, d time.Duration) {
	if m != nil {
		m.ConfirmLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}
