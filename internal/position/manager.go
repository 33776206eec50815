// Package position decides which open positions must be force-closed
// each cycle. It never mutates the ledger; it only emits exit signals.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

// Config holds the dependencies and thresholds for exit evaluation.
type Config struct {
	Quotes        ports.QuoteSource
	Logger        ports.Logger
	TPThreshold   float64       // take-profit as pnl fraction, e.g. 0.01
	SLThreshold   float64       // stop-loss as positive pnl fraction
	MaxHold       time.Duration // force exit after this hold time
	ExitOnTimeout bool
	FetchWorkers  int           // bound on concurrent quote fetches
	FetchTimeout  time.Duration // per-fetch deadline
}

// Manager evaluates exit conditions for open positions.
type Manager struct {
	quotes        ports.QuoteSource
	logger        ports.Logger
	tpThreshold   float64
	slThreshold   float64
	maxHold       time.Duration
	exitOnTimeout bool
	fetchWorkers  int
	fetchTimeout  time.Duration
	now           func() time.Time
}

// NewManager validates the configuration and creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.TPThreshold <= 0 {
		return nil, fmt.Errorf("%w: take-profit threshold must be positive", ports.ErrConfigurationError)
	}
	if cfg.SLThreshold <= 0 {
		return nil, fmt.Errorf("%w: stop-loss threshold must be positive", ports.ErrConfigurationError)
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}

	return &Manager{
		quotes:        cfg.Quotes,
		logger:        cfg.Logger,
		tpThreshold:   cfg.TPThreshold,
		slThreshold:   cfg.SLThreshold,
		maxHold:       cfg.MaxHold,
		exitOnTimeout: cfg.ExitOnTimeout,
		fetchWorkers:  cfg.FetchWorkers,
		fetchTimeout:  cfg.FetchTimeout,
		now:           time.Now,
	}, nil
}

// CheckExitConditions evaluates every open position against take-profit,
// stop-loss and timeout rules, in that priority order. Only the first
// matching rule fires per position. Positions whose token has no price
// in prices get a fresh quote fetched (bounded fan-out); when no price
// can be resolved at all, only the timeout rule applies, against the
// average entry price.
func (m *Manager) CheckExitConditions(ctx context.Context, positions map[string]domain.Position, prices map[string]float64) []*domain.ExitSignal {
	if len(positions) == 0 {
		return nil
	}

	resolved := m.resolvePrices(ctx, positions, prices)
	now := m.now()

	var signals []*domain.ExitSignal
	for tokenID, pos := range positions {
		if pos.AvgPrice <= 0 || pos.Quantity <= 0 {
			m.logger.Warn(ctx, "Skipping invalid position", map[string]interface{}{
				"token_id":  tokenID,
				"qty":       pos.Quantity,
				"avg_price": pos.AvgPrice,
			})
			continue
		}

		price, havePrice := resolved[tokenID]
		held := pos.HoldDuration(now)

		if !havePrice {
			// No fresh price this cycle: timeout is still enforceable,
			// priced at the average entry.
			if m.exitOnTimeout && m.maxHold > 0 && held >= m.maxHold {
				signals = append(signals, &domain.ExitSignal{
					TokenID:      tokenID,
					Reason:       domain.ExitTimeoutNoPrice,
					CurrentPrice: pos.AvgPrice,
					AvgPrice:     pos.AvgPrice,
					Quantity:     pos.Quantity,
					HeldFor:      held,
				})
			}
			continue
		}

		pnlPct := (price - pos.AvgPrice) / pos.AvgPrice

		switch {
		case pnlPct >= m.tpThreshold:
			signals = append(signals, &domain.ExitSignal{
				TokenID:      tokenID,
				Reason:       domain.ExitTakeProfit,
				CurrentPrice: price,
				AvgPrice:     pos.AvgPrice,
				PnLPct:       pnlPct,
				Quantity:     pos.Quantity,
				HeldFor:      held,
			})
		case pnlPct <= -m.slThreshold:
			signals = append(signals, &domain.ExitSignal{
				TokenID:      tokenID,
				Reason:       domain.ExitStopLoss,
				CurrentPrice: price,
				AvgPrice:     pos.AvgPrice,
				PnLPct:       pnlPct,
				Quantity:     pos.Quantity,
				HeldFor:      held,
			})
		case m.exitOnTimeout && m.maxHold > 0 && held >= m.maxHold:
			signals = append(signals, &domain.ExitSignal{
				TokenID:      tokenID,
				Reason:       domain.ExitTimeout,
				CurrentPrice: price,
				AvgPrice:     pos.AvgPrice,
				PnLPct:       pnlPct,
				Quantity:     pos.Quantity,
				HeldFor:      held,
			})
		}
	}

	return signals
}

// resolvePrices merges supplied prices with fresh quotes for the tokens
// that lack one, fetching concurrently under a worker bound.
func (m *Manager) resolvePrices(ctx context.Context, positions map[string]domain.Position, prices map[string]float64) map[string]float64 {
	resolved := make(map[string]float64, len(positions))
	var missing []string
	for tokenID := range positions {
		if p, ok := prices[tokenID]; ok && p > 0 {
			resolved[tokenID] = p
		} else {
			missing = append(missing, tokenID)
		}
	}

	if len(missing) == 0 || m.quotes == nil {
		return resolved
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, m.fetchWorkers)
	)
	for _, tokenID := range missing {
		wg.Add(1)
		sem <- struct{}{}
		go func(tokenID string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
			defer cancel()

			quote, err := m.quotes.GetQuote(fetchCtx, tokenID)
			if err != nil {
				m.logger.Warn(ctx, "Quote fetch failed for exit check", map[string]interface{}{
					"token_id": tokenID,
					"error":    err.Error(),
				})
				return
			}
			if mid := quote.Mid(); mid > 0 {
				mu.Lock()
				resolved[tokenID] = mid
				mu.Unlock()
			}
		}(tokenID)
	}
	wg.Wait()

	return resolved
}
