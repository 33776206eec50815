// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "polytradebot"

var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "duration_seconds",
		Help:      "Duration of one full trading tick.",
		Buckets:   prometheus.DefBuckets,
	})

	TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "skipped_total",
		Help:      "Ticks skipped because the previous one was still running.",
	})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Orders accepted for tracking, by side.",
	}, []string{"side"})

	OrderFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "fills_total",
		Help:      "Order fills observed, by side.",
	}, []string{"side"})

	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "expired_total",
		Help:      "Orders expired past max age.",
	})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trades",
		Name:      "closed_total",
		Help:      "Round trips completed, by exit reason.",
	}, []string{"reason"})

	TradesDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "denied_total",
		Help:      "Trade proposals denied by the risk gate.",
	})

	BreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "breaker_trips_total",
		Help:      "Circuit breaker trips.",
	})

	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "portfolio_value_usd",
		Help:      "Current portfolio value.",
	})

	CashAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "cash_usd",
		Help:      "Available cash.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "open_positions",
		Help:      "Number of open positions.",
	})

	DrawdownPct = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "drawdown_pct",
		Help:      "Current drawdown as a fraction of peak equity.",
	})
)
