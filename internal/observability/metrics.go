package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the balance cache. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	FlushTotal       *prometheus.CounterVec
	FlushDuration    prometheus.Histogram
	PersistErrors    *prometheus.CounterVec
	SaveQueueDepth   prometheus.Gauge
	ResidentEntities prometheus.Gauge
	Transfers        *prometheus.CounterVec
	OfflineMutations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FlushTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "economy_flush_total",
			Help: "Ledger flush attempts by result (saved, clean, failed)",
		}, []string{"result"}),

		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "economy_flush_duration_seconds",
			Help:    "Time to reconcile one ledger against the store",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "economy_persist_errors_total",
			Help: "Store read/write failures by operation",
		}, []string{"op"}),

		SaveQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "economy_save_queue_depth",
			Help: "Entities waiting for a periodic flush",
		}),

		ResidentEntities: f.NewGauge(prometheus.GaugeOpts{
			Name: "economy_resident_entities",
			Help: "Entities whose ledger is held in memory",
		}),

		Transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "economy_transfers_total",
			Help: "Transfer attempts by result",
		}, []string{"result"}),

		OfflineMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "economy_offline_mutations_total",
			Help: "Balance mutations applied directly to the store, by operation",
		}, []string{"op"}),
	}
}

// Flush records one entity flush. Clean flushes wrote nothing and are not timed.
func (m *Metrics) Flush(result string, seconds float64) {
	if m == nil {
		return
	}
	m.FlushTotal.WithLabelValues(result).Inc()
	if result != "clean" {
		m.FlushDuration.Observe(seconds)
	}
}

// PersistError counts a failed store call for op.
func (m *Metrics) PersistError(op string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(op).Inc()
}

// QueueDepth sets the number of entities waiting to be saved.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.SaveQueueDepth.Set(float64(n))
}

// Residents sets the number of entities with a loaded ledger.
func (m *Metrics) Residents(n int) {
	if m == nil {
		return
	}
	m.ResidentEntities.Set(float64(n))
}

// Transfer counts a transfer attempt by outcome.
func (m *Metrics) Transfer(result string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(result).Inc()
}

// OfflineMutation counts a mutation applied straight to the store.
func (m *Metrics) OfflineMutation(op string) {
	if m == nil {
		return
	}
	m.OfflineMutations.WithLabelValues(op).Inc()
}
