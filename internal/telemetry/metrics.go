// Package telemetry exposes prometheus counters for the exchange and
// the agent platform. Metric sinks and dashboards live outside this
// repo; both services serve the registry at GET /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_placed_total",
		Help: "Orders accepted by the matching engine.",
	}, []string{"ticker", "side", "type"})

	ordersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_cancelled_total",
		Help: "Orders cancelled by their owner.",
	}, []string{"ticker"})

	tradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_trades_total",
		Help: "Fills produced by the matching engine.",
	}, []string{"ticker"})

	tradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_trade_volume_shares_total",
		Help: "Shares exchanged across all fills.",
	}, []string{"ticker"})

	agentTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentplatform_ticks_total",
		Help: "Agent evaluation ticks, by outcome.",
	}, []string{"agent", "outcome"})

	agentActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentplatform_actions_total",
		Help: "Actions submitted to the exchange by agents.",
	}, []string{"agent", "action"})
)

// OrderPlaced records an accepted order.
func OrderPlaced(ticker, side, orderType string) {
	ordersPlaced.WithLabelValues(ticker, side, orderType).Inc()
}

// OrderCancelled records a user cancellation.
func OrderCancelled(ticker string) {
	ordersCancelled.WithLabelValues(ticker).Inc()
}

// TradeExecuted records a fill and its share volume.
func TradeExecuted(ticker string, quantity int64) {
	tradesExecuted.WithLabelValues(ticker).Inc()
	tradeVolume.WithLabelValues(ticker).Add(float64(quantity))
}

// AgentTick records one agent tick with outcome "ok" or "error".
func AgentTick(agent, outcome string) {
	agentTicks.WithLabelValues(agent, outcome).Inc()
}

// AgentAction records one submitted action (BUY, SELL or CANCEL).
func AgentAction(agent, action string) {
	agentActions.WithLabelValues(agent, action).Inc()
}
