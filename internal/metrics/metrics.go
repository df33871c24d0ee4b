// Package metrics exposes Prometheus counters for bot activity.
//
// Served by the HTTP handler started in main at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesReceived counts quote events routed into the engine.
	QuotesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drip_quotes_received_total",
			Help: "Quote events routed to a symbol trading state",
		},
		[]string{"symbol"},
	)

	// TriggersFired counts trigger firings that dispatched an order attempt.
	TriggersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drip_triggers_fired_total",
			Help: "Purchase triggers fired",
		},
		[]string{"symbol", "trigger"},
	)

	// OrdersSubmitted counts accepted order submissions.
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drip_orders_submitted_total",
			Help: "Notional buy orders accepted by the brokerage",
		},
		[]string{"symbol", "trigger"},
	)

	// OrderFailures counts rejected or errored order submissions.
	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drip_order_failures_total",
			Help: "Order submissions that failed",
		},
		[]string{"symbol"},
	)

	// OrdersAbandoned counts attempts dropped by the market-close guard.
	OrdersAbandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drip_orders_abandoned_total",
			Help: "Order attempts abandoned because the market closed",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(QuotesReceived, TriggersFired, OrdersSubmitted, OrderFailures, OrdersAbandoned)
}

// Handler returns the Prometheus text exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
