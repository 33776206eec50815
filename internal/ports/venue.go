package ports

import (
	"context"

	"polyTradeBot/internal/domain"
)

// QuoteSource provides order book snapshots for outcome tokens.
type QuoteSource interface {
	// GetQuote fetches the current order book for a token.
	// Returns ErrQuoteUnavailable (wrapped) when the venue has no book.
	GetQuote(ctx context.Context, tokenID string) (*domain.Quote, error)
}

// VenueOrder is the venue's view of a submitted order.
type VenueOrder struct {
	OrderID      string  `json:"order_id"`
	TokenID      string  `json:"token_id"`
	Status       string  `json:"status"` // live, matched, filled, cancelled
	OriginalSize float64 `json:"original_size"`
	SizeMatched  float64 `json:"size_matched"`
	AvgPrice     float64 `json:"avg_price"`
}

// VenueClient places and manages orders on the venue.
type VenueClient interface {
	// SubmitOrder places a GTC limit order and returns the venue order id.
	SubmitOrder(ctx context.Context, tokenID string, side domain.Side, price, qty float64) (string, error)
	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error
	// GetOrderStatus fetches the venue state of one order.
	GetOrderStatus(ctx context.Context, orderID string) (*VenueOrder, error)
	// GetBalance returns the available collateral balance in USD.
	GetBalance(ctx context.Context) (float64, error)
}
