package domain

import "time"

// TrackedOrder is a GTC limit order being watched for fill, cancel or expiry.
type TrackedOrder struct {
	ID         string      `json:"order_id"`
	TokenID    string      `json:"token_id"`
	Side       Side        `json:"side"`
	LimitPrice float64     `json:"limit_price"`
	Quantity   float64     `json:"qty"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	// VenueID is the venue-assigned id, set for live orders only.
	VenueID string `json:"venue_id,omitempty"`
	// TimeoutAt is zero for orders without an expiry.
	TimeoutAt time.Time `json:"timeout_at,omitempty"`
	// FilledAt / FillPrice are set once the order reaches filled.
	FilledAt  time.Time `json:"filled_at,omitempty"`
	FillPrice float64   `json:"fill_price,omitempty"`
}

// Age returns how long the order has existed.
func (o *TrackedOrder) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// TimedOut reports whether the order has an expiry and it has passed.
func (o *TrackedOrder) TimedOut(now time.Time) bool {
	return !o.TimeoutAt.IsZero() && !now.Before(o.TimeoutAt)
}

// FillResult reports the outcome of one fill-check pass for a single order.
type FillResult struct {
	OrderID   string      `json:"order_id"`
	TokenID   string      `json:"token_id"`
	Side      Side        `json:"side"`
	Status    OrderStatus `json:"status"`
	FillPrice float64     `json:"fill_price"`
	Quantity  float64     `json:"qty"`
}
