package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

// LiveConfig holds the dependencies and parameters for the live ledger.
type LiveConfig struct {
	Store    ports.StateStore
	Venue    ports.VenueClient
	Logger   ports.Logger
	StoreKey string
	StateTTL time.Duration
}

// LiveLedger mirrors real venue holdings. Cash is the venue's reported
// balance, refreshed by Reconcile and allowed to drift between syncs;
// local mutations never touch it. Positions are still tracked locally
// from fills, since the venue exposes no canonical position state.
type LiveLedger struct {
	mu        sync.Mutex
	cash      float64
	cashKnown bool
	syncedAt  time.Time
	reserved  map[string]float64
	positions map[string]*domain.Position
	closed    []domain.ClosedPosition
	totalPnL  float64

	store  ports.StateStore
	venue  ports.VenueClient
	logger ports.Logger
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewLiveLedger creates a live ledger, restoring prior state from the
// durable store when present.
func NewLiveLedger(ctx context.Context, cfg LiveConfig) (*LiveLedger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
	}
	if cfg.Venue == nil {
		return nil, fmt.Errorf("%w: venue client is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.StoreKey == "" {
		return nil, fmt.Errorf("%w: store key is required", ports.ErrConfigurationError)
	}
	if cfg.StateTTL <= 0 {
		return nil, fmt.Errorf("%w: state TTL must be positive", ports.ErrConfigurationError)
	}

	l := &LiveLedger{
		reserved:  make(map[string]float64),
		positions: make(map[string]*domain.Position),
		store:     cfg.Store,
		venue:     cfg.Venue,
		logger:    cfg.Logger,
		key:       cfg.StoreKey,
		ttl:       cfg.StateTTL,
		now:       time.Now,
	}

	if err := l.restore(ctx); err != nil {
		cfg.Logger.Warn(ctx, "Could not restore live ledger, starting fresh", map[string]interface{}{"error": err.Error()})
	}

	return l, nil
}

func (l *LiveLedger) Mode() domain.ExecMode { return domain.ModeLive }

// AddPosition records a buy fill. Cash is not debited locally; the next
// reconciliation picks up the venue balance.
func (l *LiveLedger) AddPosition(ctx context.Context, tokenID string, qty, price float64, orderIDs ...string) bool {
	if qty <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	mergeBuy(l.positions, tokenID, qty, price, l.now(), orderIDs)
	l.persistLocked(ctx)
	return true
}

func (l *LiveLedger) ReducePosition(ctx context.Context, tokenID string, qty, price float64) (float64, bool) {
	if qty <= 0 || price <= 0 {
		return 0, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pnl, _, closedRec, ok := reduceSell(l.positions, tokenID, qty, price, l.now())
	if !ok {
		return 0, false
	}

	l.totalPnL += pnl
	if closedRec != nil {
		l.closed = appendClosed(l.closed, *closedRec)
	}
	l.persistLocked(ctx)
	return pnl, true
}

// ReserveCash tracks the pending-buy commitment so concurrent buys in
// one cycle cannot overcommit the last reconciled balance. The venue
// holds the actual collateral.
func (l *LiveLedger) ReserveCash(ctx context.Context, orderID string, amount float64) bool {
	if amount <= 0 || orderID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cashKnown && amount > l.cash-sumReserved(l.reserved) {
		return false
	}

	l.reserved[orderID] = amount
	l.persistLocked(ctx)
	return true
}

func (l *LiveLedger) ReleaseReserved(ctx context.Context, orderID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.reserved[orderID]
	if !ok {
		return 0
	}
	delete(l.reserved, orderID)
	l.persistLocked(ctx)
	return amount
}

// CancelReserved drops the commitment. Nothing to restore: cash was
// never debited locally.
func (l *LiveLedger) CancelReserved(ctx context.Context, orderID string) float64 {
	return l.ReleaseReserved(ctx, orderID)
}

func (l *LiveLedger) SettleBuyFill(ctx context.Context, orderID, tokenID string, qty, price float64) bool {
	if qty <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.reserved, orderID)
	mergeBuy(l.positions, tokenID, qty, price, l.now(), []string{orderID})
	l.persistLocked(ctx)
	return true
}

func (l *LiveLedger) Position(tokenID string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[tokenID]
	if !ok {
		return domain.Position{}, false
	}
	p := *pos
	p.OrderIDs = append([]string(nil), pos.OrderIDs...)
	return p, true
}

func (l *LiveLedger) OpenPositions() map[string]domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyPositions(l.positions)
}

func (l *LiveLedger) PortfolioValue(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash + markValue(l.positions, prices)
}

func (l *LiveLedger) Snapshot(prices map[string]float64) *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &Snapshot{
		Mode:           domain.ModeLive,
		Cash:           l.cash,
		Reserved:       sumReserved(l.reserved),
		Positions:      toPointerMap(copyPositions(l.positions)),
		ClosedRecent:   append([]domain.ClosedPosition(nil), l.closed...),
		TotalPnL:       l.totalPnL,
		PortfolioValue: l.cash + markValue(l.positions, prices),
	}
}

func (l *LiveLedger) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved = make(map[string]float64)
	l.positions = make(map[string]*domain.Position)
	l.closed = nil
	l.totalPnL = 0
	l.persistLocked(ctx)
}

// Reconcile refreshes cash from the venue balance. Best-effort: it logs
// drift and never overwrites locally tracked positions.
func (l *LiveLedger) Reconcile(ctx context.Context) error {
	balance, err := l.venue.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("reconcile balance: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cashKnown && balance != l.cash {
		l.logger.Info(ctx, "Venue balance drifted since last sync", map[string]interface{}{
			"previous": l.cash,
			"current":  balance,
		})
	}

	l.cash = balance
	l.cashKnown = true
	l.syncedAt = l.now()
	l.persistLocked(ctx)
	return nil
}

func (l *LiveLedger) persistLocked(ctx context.Context) {
	state := persistedState{
		Cash:      l.cash,
		Reserved:  l.reserved,
		Positions: l.positions,
		Closed:    l.closed,
		TotalPnL:  l.totalPnL,
		UpdatedAt: l.now(),
	}

	data, err := json.Marshal(&state)
	if err != nil {
		l.logger.Error(ctx, err, "Failed to serialize live ledger state")
		return
	}
	if err := l.store.SetWithTTL(ctx, l.key, data, l.ttl); err != nil {
		l.logger.Warn(ctx, "Live ledger persist failed, continuing in-memory", map[string]interface{}{"error": err.Error()})
	}
}

func (l *LiveLedger) restore(ctx context.Context) error {
	data, err := l.store.Get(ctx, l.key)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.cash = state.Cash
	l.cashKnown = state.Cash > 0
	l.totalPnL = state.TotalPnL
	l.closed = state.Closed
	if state.Reserved != nil {
		l.reserved = state.Reserved
	}
	if state.Positions != nil {
		l.positions = state.Positions
	}

	l.logger.Info(ctx, "Restored live ledger state", map[string]interface{}{
		"cash":      l.cash,
		"positions": len(l.positions),
		"total_pnl": l.totalPnL,
	})
	return nil
}
