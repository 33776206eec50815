// Package risk gates every proposed trade and records post-trade
// bookkeeping. It is the only component that converts a detected problem
// into a deny decision.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ledger"
	"polyTradeBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EngineConfig holds the dependencies and parameters for the risk engine.
type EngineConfig struct {
	Store  ports.StateStore
	Trades ports.TradeRepository
	Logger ports.Logger

	Limits Limits
	Quote  QuoteChecks
	Kelly  KellySizer

	BreakerCooldown      time.Duration
	MaxConsecutiveLosses int
	MaxVenueErrors       int // venue errors in one fill scan that trip the breaker
	TradeCooldown        time.Duration
	FixedOrderUSD        float64
	StateKey             string
}

// Status is the full risk picture exposed to operators.
type Status struct {
	Breaker           BreakerStatus  `json:"breaker"`
	Drawdown          DrawdownStatus `json:"drawdown"`
	ConsecutiveLosses int            `json:"consecutive_losses"`
	ConsecutiveWins   int            `json:"consecutive_wins"`
	LastTradeAt       time.Time      `json:"last_trade_at,omitempty"`
	Limits            Limits         `json:"limits"`
}

// Engine composes the breaker, drawdown monitor, limits and Kelly sizing
// into the single pre-trade gate.
type Engine struct {
	breaker  *CircuitBreaker
	drawdown *DrawdownMonitor
	limits   Limits
	quote    QuoteChecks
	kelly    KellySizer

	store  ports.StateStore
	trades ports.TradeRepository
	logger ports.Logger

	mu                sync.Mutex
	consecutiveLosses int
	consecutiveWins   int
	lastTradeAt       time.Time

	maxConsecutiveLosses int
	maxVenueErrors       int
	tradeCooldown        time.Duration
	fixedOrderUSD        float64
	stateKey             string
	now                  func() time.Time
}

// NewEngine creates the risk engine, restoring durable risk state when
// present.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
	}
	if cfg.Trades == nil {
		return nil, fmt.Errorf("%w: trade repository is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.MaxConsecutiveLosses <= 0 {
		return nil, fmt.Errorf("%w: max consecutive losses must be positive", ports.ErrConfigurationError)
	}
	if cfg.BreakerCooldown <= 0 {
		return nil, fmt.Errorf("%w: breaker cooldown must be positive", ports.ErrConfigurationError)
	}
	if cfg.StateKey == "" {
		return nil, fmt.Errorf("%w: state key is required", ports.ErrConfigurationError)
	}

	e := &Engine{
		breaker:              NewCircuitBreaker(cfg.BreakerCooldown, cfg.Logger),
		drawdown:             NewDrawdownMonitor(cfg.Limits.MaxDrawdownPct),
		limits:               cfg.Limits,
		quote:                cfg.Quote,
		kelly:                cfg.Kelly,
		store:                cfg.Store,
		trades:               cfg.Trades,
		logger:               cfg.Logger,
		maxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		maxVenueErrors:       cfg.MaxVenueErrors,
		tradeCooldown:        cfg.TradeCooldown,
		fixedOrderUSD:        cfg.FixedOrderUSD,
		stateKey:             cfg.StateKey,
		now:                  time.Now,
	}

	if err := e.loadState(ctx); err != nil {
		cfg.Logger.Warn(ctx, "Could not restore risk state, starting fresh", map[string]interface{}{"error": err.Error()})
	}

	return e, nil
}

// PreTradeChecks is the gate every proposed trade passes before an order
// is placed. Hold decisions pass through untouched. Checks run in a
// fixed order and the first failure wins.
func (e *Engine) PreTradeChecks(ctx context.Context, decision *domain.TradeDecision, snap *ledger.Snapshot, quote *domain.Quote) domain.RiskVerdict {
	if decision == nil || decision.Action == domain.ActionHold {
		return domain.RiskVerdict{Allowed: true, Reason: "hold"}
	}

	e.breaker.AutoResetCheck(ctx)

	e.mu.Lock()
	losses := e.consecutiveLosses
	lastTrade := e.lastTradeAt
	e.mu.Unlock()

	if losses >= e.maxConsecutiveLosses {
		e.breaker.Trip(ctx, fmt.Sprintf("%d consecutive losses", losses))
	}

	if e.breaker.IsOpen() {
		st := e.breaker.Status()
		return domain.RiskVerdict{
			Allowed: false,
			Reason:  fmt.Sprintf("circuit breaker open: %s (cooldown %.0fs remaining)", st.Reason, st.CooldownRemaining.Seconds()),
		}
	}

	if decision.Action == domain.ActionBuy {
		orderSize := decision.SizeUSD
		if orderSize <= 0 {
			orderSize = e.fixedOrderUSD
		}

		dailyPnL := e.pnlSince(ctx, startOfDay(e.now()))
		weeklyPnL := e.pnlSince(ctx, e.now().Add(-7*24*time.Hour))

		ok, reason := e.limits.CanOpenPosition(
			orderSize,
			snap.PortfolioValue,
			len(snap.Positions),
			dailyPnL,
			weeklyPnL,
			e.drawdown.CurrentPct(),
		)
		if !ok {
			return domain.RiskVerdict{Allowed: false, Reason: reason}
		}
	}

	if quote != nil {
		side := domain.Buy
		if decision.Action == domain.ActionSell {
			side = domain.Sell
		}
		if ok, reason := e.quote.CheckAll(quote, side, decision.LimitPrice); !ok {
			return domain.RiskVerdict{Allowed: false, Reason: reason}
		}
	}

	if e.tradeCooldown > 0 && !lastTrade.IsZero() {
		if elapsed := e.now().Sub(lastTrade); elapsed < e.tradeCooldown {
			return domain.RiskVerdict{
				Allowed: false,
				Reason:  fmt.Sprintf("trade cooldown: %.1fs since last trade, need %.1fs", elapsed.Seconds(), e.tradeCooldown.Seconds()),
			}
		}
	}

	size := decision.SizeUSD
	if decision.Action == domain.ActionBuy {
		size = e.sizePosition(ctx, snap.PortfolioValue, decision.Confidence)
		if size <= 0 {
			return domain.RiskVerdict{Allowed: false, Reason: "kelly sizing returned zero: no statistical edge"}
		}
	}

	return domain.RiskVerdict{Allowed: true, Reason: "all checks passed", SizeUSD: size}
}

// PostTradeUpdate records the new equity and, for completed trades, the
// streaks and trip conditions.
func (e *Engine) PostTradeUpdate(ctx context.Context, trade *domain.TradeRecord, portfolioValue float64) {
	e.drawdown.UpdateEquity(portfolioValue)

	if trade != nil {
		e.mu.Lock()
		if trade.IsWin() {
			e.consecutiveWins++
			e.consecutiveLosses = 0
		} else {
			e.consecutiveLosses++
			e.consecutiveWins = 0
		}
		losses := e.consecutiveLosses
		e.lastTradeAt = e.now()
		e.mu.Unlock()

		if losses >= e.maxConsecutiveLosses {
			e.breaker.Trip(ctx, fmt.Sprintf("%d consecutive losses", losses))
		}

		if dailyPnL := e.pnlSince(ctx, startOfDay(e.now())); dailyPnL < 0 && -dailyPnL >= e.limits.MaxDailyLoss {
			e.breaker.Trip(ctx, fmt.Sprintf("daily loss cap breached: $%.2f", -dailyPnL))
		}
	}

	if ddPct := e.drawdown.CurrentPct(); ddPct >= e.limits.MaxDrawdownPct {
		e.breaker.Trip(ctx, fmt.Sprintf("drawdown cap breached: %.1f%%", ddPct*100))
	}

	e.persistState(ctx)
}

// RecordVenueErrors trips the breaker when a single fill scan saw too
// many venue failures.
func (e *Engine) RecordVenueErrors(ctx context.Context, count int) {
	if e.maxVenueErrors > 0 && count >= e.maxVenueErrors {
		e.breaker.Trip(ctx, fmt.Sprintf("%d venue API errors in one scan", count))
		e.persistState(ctx)
	}
}

// ResetBreaker is the explicit operator action.
func (e *Engine) ResetBreaker(ctx context.Context) {
	e.breaker.Reset(ctx)
	e.persistState(ctx)
}

// RiskStatus returns the full risk picture.
func (e *Engine) RiskStatus() Status {
	e.mu.Lock()
	losses, wins, lastTrade := e.consecutiveLosses, e.consecutiveWins, e.lastTradeAt
	e.mu.Unlock()

	return Status{
		Breaker:           e.breaker.Status(),
		Drawdown:          e.drawdown.Status(),
		ConsecutiveLosses: losses,
		ConsecutiveWins:   wins,
		LastTradeAt:       lastTrade,
		Limits:            e.limits,
	}
}

// pnlSince treats repository failures as "no data this cycle".
func (e *Engine) pnlSince(ctx context.Context, since time.Time) float64 {
	pnl, err := e.trades.PnLSince(ctx, since)
	if err != nil {
		e.logger.Warn(ctx, "PnL window query failed, assuming zero", map[string]interface{}{"error": err.Error()})
		return 0
	}
	return pnl
}

func (e *Engine) sizePosition(ctx context.Context, portfolioValue, confidence float64) float64 {
	stats, err := e.trades.Stats(ctx)
	if err != nil {
		e.logger.Warn(ctx, "Trade stats query failed, using fixed sizing", map[string]interface{}{"error": err.Error()})
		stats = nil
	}
	return e.kelly.Size(stats, portfolioValue, confidence)
}

func (e *Engine) persistState(ctx context.Context) {
	e.mu.Lock()
	breakerSt := e.breaker.Status()
	ddSt := e.drawdown.Status()
	state := domain.RiskState{
		BreakerState:      breakerSt.State,
		BreakerReason:     breakerSt.Reason,
		TrippedAt:         breakerSt.TrippedAt,
		ConsecutiveLosses: e.consecutiveLosses,
		ConsecutiveWins:   e.consecutiveWins,
		LastTradeAt:       e.lastTradeAt,
		PeakEquity:        ddSt.PeakEquity,
		MaxDrawdown:       ddSt.MaxUSD,
		MaxDrawdownAt:     ddSt.MaxAt,
	}
	e.mu.Unlock()

	data, err := json.Marshal(&state)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to serialize risk state")
		return
	}
	if err := e.store.Set(ctx, e.stateKey, data); err != nil {
		e.logger.Warn(ctx, "Risk state persist failed, continuing in-memory", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) loadState(ctx context.Context) error {
	data, err := e.store.Get(ctx, e.stateKey)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var state domain.RiskState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	e.mu.Lock()
	e.consecutiveLosses = state.ConsecutiveLosses
	e.consecutiveWins = state.ConsecutiveWins
	e.lastTradeAt = state.LastTradeAt
	e.mu.Unlock()

	e.breaker.restore(state.BreakerState, state.BreakerReason, state.TrippedAt)
	e.drawdown.restore(state.PeakEquity, state.MaxDrawdown, state.MaxDrawdownAt)

	e.logger.Info(ctx, "Restored risk state", map[string]interface{}{
		"breaker":            state.BreakerState,
		"consecutive_losses": state.ConsecutiveLosses,
		"peak_equity":        state.PeakEquity,
	})
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
