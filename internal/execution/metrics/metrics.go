package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the execution domain's delivery handling. All methods
// are nil-safe so collaborators can run without a registry in tests.
type Metrics struct {
	Deliveries        *prometheus.CounterVec
	DedupReplays      prometheus.Counter
	ProvenanceDrops   prometheus.Counter
	HandlerFailures   *prometheus.CounterVec
	PartialFailures   prometheus.Counter
	MirrorAgeSeconds  prometheus.Gauge
	MirrorSyncErrors  prometheus.Counter
	VaultCallDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultbridge_execution_deliveries_total",
			Help: "Relay deliveries processed, by operation kind and outcome.",
		}, []string{"kind", "outcome"}),
		DedupReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_execution_dedup_replays_total",
			Help: "Deliveries answered from the dedup cache without re-execution.",
		}),
		ProvenanceDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_execution_provenance_drops_total",
			Help: "Deliveries dropped because the envelope origin was not trusted.",
		}),
		HandlerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultbridge_execution_handler_failures_total",
			Help: "Failed operation executions, by kind and error code.",
		}, []string{"kind", "code"}),
		PartialFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_execution_partial_failures_total",
			Help: "Vault calls that succeeded while the local position update failed.",
		}),
		MirrorAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vaultbridge_execution_mirror_age_seconds",
			Help: "Seconds since the authorization mirror was last synced.",
		}),
		MirrorSyncErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vaultbridge_execution_mirror_sync_errors_total",
			Help: "Failed authorization mirror sync attempts.",
		}),
		VaultCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultbridge_execution_vault_call_seconds",
			Help:    "Latency of vault backend calls, by call type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
	}
}

func (m *Metrics) IncrementDelivery(kind, outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncrementDedupReplay() {
	if m != nil {
		m.DedupReplays.Inc()
	}
}

func (m *Metrics) IncrementProvenanceDrop() {
	if m != nil {
		m.ProvenanceDrops.Inc()
	}
}

func (m *Metrics) IncrementHandlerFailure(kind, code string) {
	if m != nil {
		m.HandlerFailures.WithLabelValues(kind, code).Inc()
	}
}

func (m *Metrics) IncrementPartialFailure() {
	if m != nil {
		m.PartialFailures.Inc()
	}
}

func (m *Metrics) SetMirrorAge(age time.Duration) {
	if m != nil {
		m.MirrorAgeSeconds.Set(age.Seconds())
	}
}

func (m *Metrics) IncrementMirrorSyncError() {
	if m != nil {
		m.MirrorSyncErrors.Inc()
	}
}

func (m *Metrics) ObserveVaultCall(call string, d time.Duration) {
	if m != nil {
		m.VaultCallDuration.WithLabelValues(call).Observe(d.Seconds())
	}
}
