package ports

import (
	"context"

	"polyTradeBot/internal/domain"
)

// DecisionSource produces trade recommendations for the orchestrator.
// Implementations live outside this module (scanner, model, manual feed).
type DecisionSource interface {
	// NextDecisions returns zero or more recommendations for this tick.
	NextDecisions(ctx context.Context) ([]*domain.TradeDecision, error)
	// WatchedTokens lists token ids whose quotes the tick should refresh.
	WatchedTokens(ctx context.Context) ([]string, error)
}
