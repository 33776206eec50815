package domain

import "time"

// Position represents an open holding in a single outcome token.
// AvgPrice is the weighted average entry price in probability units (0..1).
type Position struct {
	TokenID   string    `json:"token_id"`
	Quantity  float64   `json:"qty"`
	AvgPrice  float64   `json:"avg_price"`
	CostBasis float64   `json:"cost_basis"`
	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// OrderIDs lists the orders whose fills built this position.
	OrderIDs []string `json:"order_ids,omitempty"`
}

// CurrentValue returns the mark value of the position at the given price.
func (p *Position) CurrentValue(price float64) float64 {
	return p.Quantity * price
}

// UnrealizedPnL returns the open profit or loss at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgPrice) * p.Quantity
}

// HoldDuration returns how long the position has been open.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// ClosedPosition is the historical record kept when a position is fully
// closed (or reduced to dust).
type ClosedPosition struct {
	TokenID     string    `json:"token_id"`
	Quantity    float64   `json:"qty"`
	AvgPrice    float64   `json:"avg_price"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}
