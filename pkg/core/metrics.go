package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts model activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	dropped      prometheus.Counter
}

// NewMetrics registers the model counters on reg. A nil reg uses a private
// registry. Counters already registered by another service are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "owlet",
			Subsystem: "model",
			Name:      "events_total",
			Help:      "Model events delivered to listeners, by entity kind and event type.",
		}, []string{"kind", "type"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "owlet",
			Subsystem: "model",
			Name:      "transactions_total",
			Help:      "Model transactions, by outcome.",
		}, []string{"status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "owlet",
			Subsystem: "model",
			Name:      "dropped_batches_total",
			Help:      "Batches dropped because a subscriber buffer was full.",
		}),
	}

	m.events = register(reg, m.events)
	m.transactions = register(reg, m.transactions)
	m.dropped = register(reg, m.dropped)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeBatch(b *Batch) {
	if m == nil {
		return
	}
	kind := string(b.Kind)
	if n := len(b.Added); n > 0 {
		m.events.WithLabelValues(kind, string(EventAdded)).Add(float64(n))
	}
	if n := len(b.Updated); n > 0 {
		m.events.WithLabelValues(kind, string(EventUpdated)).Add(float64(n))
	}
	if n := len(b.Deleted); n > 0 {
		m.events.WithLabelValues(kind, string(EventDeleted)).Add(float64(n))
	}
}

func (m *Metrics) observeTransaction(status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(status).Inc()
}

func (m *Metrics) observeDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Events returns the delivered events counter.
func (m *Metrics) Events() *prometheus.CounterVec { return m.events }

// Transactions returns the transaction outcome counter.
func (m *Metrics) Transactions() *prometheus.CounterVec { return m.transactions }

// Dropped returns the dropped batches counter.
func (m *Metrics) Dropped() prometheus.Counter { return m.dropped }
