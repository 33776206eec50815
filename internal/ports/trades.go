package ports

import (
	"context"
	"time"

	"polyTradeBot/internal/domain"
)

// TradeRepository stores completed round trips and answers the windowed
// queries the risk engine needs.
type TradeRepository interface {
	// CreateTrade appends a completed trade and returns its id.
	CreateTrade(ctx context.Context, trade *domain.TradeRecord) (int64, error)
	// PnLSince sums realized PnL for trades exited at or after the cutoff.
	PnLSince(ctx context.Context, since time.Time) (float64, error)
	// Stats aggregates win/loss statistics over the whole history.
	Stats(ctx context.Context) (*domain.TradeStats, error)
	// RecentTrades returns up to limit most recent trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error)
}
