package domain

import "time"

// TradeRecord represents a completed round trip on one token.
type TradeRecord struct {
	ID         int64      // Unique identifier for the trade (usually from DB)
	TokenID    string     // Outcome token identifier
	EntryPrice float64    // Weighted average entry price
	ExitPrice  float64    // Price at which the position was exited
	Quantity   float64    // Size of the position traded
	PnL        float64    // Realized profit and loss for this trade
	ExitReason ExitReason // Why the position was closed
	EntryTime  time.Time  // Timestamp when the position was entered
	ExitTime   time.Time  // Timestamp when the position was exited
}

// IsWin reports whether the trade closed profitable.
func (t *TradeRecord) IsWin() bool {
	return t.PnL > 0
}

// TradeStats aggregates historical trade performance for sizing.
type TradeStats struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"` // positive magnitude
}
