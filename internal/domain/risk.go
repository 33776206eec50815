package domain

import "time"

// RiskState is the durable portion of the risk engine: everything that
// must survive a restart.
type RiskState struct {
	BreakerState      BreakerState `json:"breaker_state"`
	BreakerReason     string       `json:"breaker_reason,omitempty"`
	TrippedAt         time.Time    `json:"tripped_at,omitempty"`
	ConsecutiveLosses int          `json:"consecutive_losses"`
	ConsecutiveWins   int          `json:"consecutive_wins"`
	LastTradeAt       time.Time    `json:"last_trade_at,omitempty"`
	PeakEquity        float64      `json:"peak_equity"`
	MaxDrawdown       float64      `json:"max_drawdown"`
	MaxDrawdownAt     time.Time    `json:"max_drawdown_at,omitempty"`
}
