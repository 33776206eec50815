// Package decisionfeed reads trade recommendations that an external
// scanner publishes to the durable store. The queue key is drained on
// every read; the watchlist key is left in place.
package decisionfeed

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the dependencies and store keys for the feed.
type Config struct {
	Store        ports.StateStore
	Logger       ports.Logger
	QueueKey     string
	WatchlistKey string
}

// Feed is a store-backed DecisionSource.
type Feed struct {
	store        ports.StateStore
	logger       ports.Logger
	queueKey     string
	watchlistKey string
}

// New validates the configuration and creates a feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.QueueKey == "" || cfg.WatchlistKey == "" {
		return nil, fmt.Errorf("%w: queue and watchlist keys are required", ports.ErrConfigurationError)
	}

	return &Feed{
		store:        cfg.Store,
		logger:       cfg.Logger,
		queueKey:     cfg.QueueKey,
		watchlistKey: cfg.WatchlistKey,
	}, nil
}

// NextDecisions returns the pending recommendations and clears the
// queue. An empty or missing queue yields nil.
func (f *Feed) NextDecisions(ctx context.Context) ([]*domain.TradeDecision, error) {
	data, err := f.store.Get(ctx, f.queueKey)
	if err != nil {
		return nil, fmt.Errorf("reading decision queue: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var decisions []*domain.TradeDecision
	if err := json.Unmarshal(data, &decisions); err != nil {
		return nil, fmt.Errorf("decoding decision queue: %w", err)
	}

	if err := f.store.Delete(ctx, f.queueKey); err != nil {
		f.logger.Warn(ctx, "Could not clear decision queue", map[string]interface{}{"error": err.Error()})
	}

	return decisions, nil
}

// WatchedTokens returns the published watchlist, nil when none is set.
func (f *Feed) WatchedTokens(ctx context.Context) ([]string, error) {
	data, err := f.store.Get(ctx, f.watchlistKey)
	if err != nil {
		return nil, fmt.Errorf("reading watchlist: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decoding watchlist: %w", err)
	}
	return tokens, nil
}
