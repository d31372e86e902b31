package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"cipherex/core/events"
	"cipherex/core/types"
	"cipherex/native/exchange"
	"cipherex/native/transfer"
)

// ExchangeMetrics tracks the handoff and order lifecycle counters exported
// at /metrics.
type ExchangeMetrics struct {
	transfersOpened   *prometheus.CounterVec
	transfersFinished prometheus.Counter
	transfersCanceled prometheus.Counter
	fraudReports      prometheus.Counter
	fraudDecisions    *prometheus.CounterVec
	ordersPlaced      prometheus.Counter
	ordersFulfilled   prometheus.Counter
	ordersCancelled   prometheus.Counter
	payouts           *prometheus.CounterVec
}

var (
	exchangeOnce     sync.Once
	exchangeRegistry *ExchangeMetrics
)

func Exchange() *ExchangeMetrics {
	exchangeOnce.Do(func() {
		exchangeRegistry = &ExchangeMetrics{
			transfersOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cipherex_transfers_opened_total",
				Help: "Count of opened handoffs by kind (init or draft).",
			}, []string{"kind"}),
			transfersFinished: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_transfers_finished_total",
				Help: "Count of handoffs that finalised successfully.",
			}),
			transfersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_transfers_cancelled_total",
				Help: "Count of handoffs torn down before completion.",
			}),
			fraudReports: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_fraud_reports_total",
				Help: "Count of fraud reports filed by recipients.",
			}),
			fraudDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cipherex_fraud_decisions_total",
				Help: "Count of fraud arbitration outcomes by verdict.",
			}, []string{"approved"}),
			ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_orders_placed_total",
				Help: "Count of sale orders opened by sellers.",
			}),
			ordersFulfilled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_orders_fulfilled_total",
				Help: "Count of orders funded by buyers.",
			}),
			ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cipherex_orders_cancelled_total",
				Help: "Count of orders withdrawn or unwound.",
			}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cipherex_payouts_total",
				Help: "Count of escrow payouts by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			exchangeRegistry.transfersOpened,
			exchangeRegistry.transfersFinished,
			exchangeRegistry.transfersCanceled,
			exchangeRegistry.fraudReports,
			exchangeRegistry.fraudDecisions,
			exchangeRegistry.ordersPlaced,
			exchangeRegistry.ordersFulfilled,
			exchangeRegistry.ordersCancelled,
			exchangeRegistry.payouts,
		)
	})
	return exchangeRegistry
}

func (m *ExchangeMetrics) ObserveTransferOpened(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.transfersOpened.WithLabelValues(kind).Inc()
}

func (m *ExchangeMetrics) ObserveTransferFinished() {
	if m == nil {
		return
	}
	m.transfersFinished.Inc()
}

func (m *ExchangeMetrics) ObserveTransferCancelled() {
	if m == nil {
		return
	}
	m.transfersCanceled.Inc()
}

func (m *ExchangeMetrics) ObserveFraudReported() {
	if m == nil {
		return
	}
	m.fraudReports.Inc()
}

func (m *ExchangeMetrics) ObserveFraudDecided(approved string) {
	if m == nil {
		return
	}
	if approved == "" {
		approved = "unknown"
	}
	m.fraudDecisions.WithLabelValues(approved).Inc()
}

func (m *ExchangeMetrics) ObserveOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *ExchangeMetrics) ObserveOrderFulfilled() {
	if m == nil {
		return
	}
	m.ordersFulfilled.Inc()
}

func (m *ExchangeMetrics) ObserveOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *ExchangeMetrics) ObservePayout(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.payouts.WithLabelValues(outcome).Inc()
}

// Emitter bridges engine events onto the metric counters so the registries
// update without the engines knowing about Prometheus.
type Emitter struct {
	metrics *ExchangeMetrics
}

// NewEmitter returns an events.Emitter feeding the shared registry.
func NewEmitter() *Emitter {
	return &Emitter{metrics: Exchange()}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.metrics == nil || evt == nil {
		return
	}
	attr := func(key string) string {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok || carrier.Event() == nil {
			return ""
		}
		return carrier.Event().Attributes[key]
	}
	switch evt.EventType() {
	case transfer.EventTypeTransferInit:
		e.metrics.ObserveTransferOpened("init")
	case transfer.EventTypeTransferDrafted:
		e.metrics.ObserveTransferOpened("draft")
	case transfer.EventTypeTransferFinished:
		e.metrics.ObserveTransferFinished()
	case transfer.EventTypeTransferCancelled:
		e.metrics.ObserveTransferCancelled()
	case transfer.EventTypeFraudReported:
		e.metrics.ObserveFraudReported()
	case transfer.EventTypeFraudDecided:
		e.metrics.ObserveFraudDecided(attr("approved"))
	case exchange.EventTypeOrderPlaced:
		e.metrics.ObserveOrderPlaced()
	case exchange.EventTypeOrderFulfilled:
		e.metrics.ObserveOrderFulfilled()
	case exchange.EventTypeOrderCancelled:
		e.metrics.ObserveOrderCancelled()
	case exchange.EventTypePaidOut:
		e.metrics.ObservePayout(attr("outcome"))
	}
}
