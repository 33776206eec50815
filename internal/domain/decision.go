package domain

import "time"

// TradeDecision is a recommendation produced by an external decision
// source. Confidence is in [0,1]; SizeUSD is a suggestion that risk
// sizing may override.
type TradeDecision struct {
	TokenID    string         `json:"token_id"`
	Action     DecisionAction `json:"action"`
	LimitPrice float64        `json:"limit_price"`
	SizeUSD    float64        `json:"size_usd"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason,omitempty"`
}

// ExitSignal is produced by the position manager when an open position
// should be closed. PnLPct is the unrealized fraction against the
// average entry; zero when no fresh price could be resolved.
type ExitSignal struct {
	TokenID      string        `json:"token_id"`
	Reason       ExitReason    `json:"reason"`
	CurrentPrice float64       `json:"current_price"`
	AvgPrice     float64       `json:"avg_price"`
	PnLPct       float64       `json:"pnl_pct"`
	Quantity     float64       `json:"qty"`
	HeldFor      time.Duration `json:"held_for"`
}

// RiskVerdict is the outcome of the pre-trade gate. When Allowed, SizeUSD
// carries the final position size to use.
type RiskVerdict struct {
	Allowed bool    `json:"allowed"`
	Reason  string  `json:"reason"`
	SizeUSD float64 `json:"size_usd"`
}
