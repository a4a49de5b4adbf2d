package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the court and its background workers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Status transitions by destination status
	Transitions *prometheus.CounterVec

	// Failure-path entries by reason
	Failures *prometheus.CounterVec

	// Callback outcomes: resolved, failed, rejected
	Callbacks *prometheus.CounterVec

	// Escrow transfers by kind (refund, release, withdrawal) or failed
	Refunds *prometheus.CounterVec

	// Decryption round-trip from request to callback
	DecryptionLatency prometheus.Histogram

	// Outbox relay publishes by result
	OutboxPublished *prometheus.CounterVec

	// Disputes currently waiting on a callback
	InFlight prometheus.Gauge
}

// New registers all metrics against reg. Passing nil uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedcourt_dispute_transitions_total",
			Help: "Dispute status transitions by destination status",
		}, []string{"status"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedcourt_dispute_failures_total",
			Help: "Disputes routed into failure handling by reason",
		}, []string{"reason"}),

		Callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedcourt_oracle_callbacks_total",
			Help: "Oracle callbacks by outcome",
		}, []string{"outcome"}),

		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedcourt_refunds_total",
			Help: "Refund transfers by result",
		}, []string{"result"}),

		DecryptionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealedcourt_decryption_roundtrip_seconds",
			Help:    "Time between a decryption request and its accepted callback",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 600, 3600, 86400},
		}),

		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedcourt_outbox_published_total",
			Help: "Outbox messages relayed by result",
		}, []string{"result"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealedcourt_decryptions_in_flight",
			Help: "Disputes waiting on an oracle callback",
		}),
	}
}

func (m *Metrics) IncTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncFailure(reason string) {
	if m != nil {
		m.Failures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncCallback(outcome string) {
	if m != nil {
		m.Callbacks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncRefund(result string) {
	if m != nil {
		m.Refunds.WithLabelValues(result).Inc()
	}
}

// ObserveDecryption records the round-trip of an accepted callback.
func (m *Metrics) ObserveDecryption(d time.Duration) {
	if m != nil {
		m.DecryptionLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncOutbox(result string) {
	if m != nil {
		m.OutboxPublished.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DecryptionStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) DecryptionSettled() {
	if m != nil {
		m.InFlight.Dec()
	}
}
