package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PaperConfig holds the dependencies and parameters for the paper ledger.
type PaperConfig struct {
	Store       ports.StateStore
	Logger      ports.Logger
	InitialCash float64
	StoreKey    string // durable-store key for the serialized ledger
}

// PaperLedger is a closed cash system: every dollar is either available,
// reserved against a pending buy, or sunk into a position.
type PaperLedger struct {
	mu          sync.Mutex
	cash        float64
	initialCash float64
	reserved    map[string]float64
	positions   map[string]*domain.Position
	closed      []domain.ClosedPosition
	totalPnL    float64

	store  ports.StateStore
	logger ports.Logger
	key    string
	now    func() time.Time
}

// NewPaperLedger creates a paper ledger, restoring prior state from the
// durable store when present.
func NewPaperLedger(ctx context.Context, cfg PaperConfig) (*PaperLedger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("%w: initial cash must be positive", ports.ErrConfigurationError)
	}
	if cfg.StoreKey == "" {
		return nil, fmt.Errorf("%w: store key is required", ports.ErrConfigurationError)
	}

	l := &PaperLedger{
		cash:        cfg.InitialCash,
		initialCash: cfg.InitialCash,
		reserved:    make(map[string]float64),
		positions:   make(map[string]*domain.Position),
		store:       cfg.Store,
		logger:      cfg.Logger,
		key:         cfg.StoreKey,
		now:         time.Now,
	}

	if err := l.restore(ctx); err != nil {
		cfg.Logger.Warn(ctx, "Could not restore paper ledger, starting fresh", map[string]interface{}{"error": err.Error()})
	}

	return l, nil
}

func (l *PaperLedger) Mode() domain.ExecMode { return domain.ModePaper }

// AddPosition merges a direct buy into the book, debiting cash.
// Fails when the cost exceeds available cash.
func (l *PaperLedger) AddPosition(ctx context.Context, tokenID string, qty, price float64, orderIDs ...string) bool {
	if qty <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := qty * price
	if cost > l.cash {
		return false
	}

	l.cash -= cost
	mergeBuy(l.positions, tokenID, qty, price, l.now(), orderIDs)
	l.persistLocked(ctx)
	return true
}

func (l *PaperLedger) ReducePosition(ctx context.Context, tokenID string, qty, price float64) (float64, bool) {
	if qty <= 0 || price <= 0 {
		return 0, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pnl, sold, closedRec, ok := reduceSell(l.positions, tokenID, qty, price, l.now())
	if !ok {
		return 0, false
	}

	l.cash += sold * price
	l.totalPnL += pnl
	if closedRec != nil {
		l.closed = appendClosed(l.closed, *closedRec)
	}
	l.persistLocked(ctx)
	return pnl, true
}

func (l *PaperLedger) ReserveCash(ctx context.Context, orderID string, amount float64) bool {
	if amount <= 0 || orderID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > l.cash {
		return false
	}

	l.cash -= amount
	l.reserved[orderID] = amount
	l.persistLocked(ctx)
	return true
}

func (l *PaperLedger) ReleaseReserved(ctx context.Context, orderID string) float64 {
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

func (l *PaperLedger) CancelReserved(ctx context.Context, orderID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.reserved[orderID]
	if !ok {
		return 0
	}
	delete(l.reserved, orderID)
	l.cash += amount
	l.persistLocked(ctx)
	return amount
}

// SettleBuyFill converts the order's reservation into a position debit
// under a single lock hold. A buy fills at or below its limit, so any
// unspent remainder of the reservation returns to cash. When no
// reservation exists (restart lost it), the fill is charged to cash
// directly.
func (l *PaperLedger) SettleBuyFill(ctx context.Context, orderID, tokenID string, qty, price float64) bool {
	if qty <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := qty * price
	if amount, ok := l.reserved[orderID]; ok {
		delete(l.reserved, orderID)
		l.cash += amount - cost
		if l.cash < 0 {
			// Fill cost exceeded the reservation; clamp and flag.
			l.logger.Warn(ctx, "Buy fill cost exceeded reservation", map[string]interface{}{
				"order_id": orderID,
				"reserved": amount,
				"cost":     cost,
			})
			l.cash = 0
		}
	} else {
		if cost > l.cash {
			return false
		}
		l.cash -= cost
	}

	mergeBuy(l.positions, tokenID, qty, price, l.now(), []string{orderID})
	l.persistLocked(ctx)
	return true
}

func (l *PaperLedger) Position(tokenID string) (domain.Position, bool) {
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

func (l *PaperLedger) OpenPositions() map[string]domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyPositions(l.positions)
}

func (l *PaperLedger) PortfolioValue(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash + sumReserved(l.reserved) + markValue(l.positions, prices)
}

func (l *PaperLedger) Snapshot(prices map[string]float64) *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &Snapshot{
		Mode:           domain.ModePaper,
		Cash:           l.cash,
		Reserved:       sumReserved(l.reserved),
		Positions:      toPointerMap(copyPositions(l.positions)),
		ClosedRecent:   append([]domain.ClosedPosition(nil), l.closed...),
		TotalPnL:       l.totalPnL,
		PortfolioValue: l.cash + sumReserved(l.reserved) + markValue(l.positions, prices),
	}
}

func (l *PaperLedger) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = l.initialCash
	l.reserved = make(map[string]float64)
	l.positions = make(map[string]*domain.Position)
	l.closed = nil
	l.totalPnL = 0
	l.persistLocked(ctx)
}

// persistLocked writes the full ledger to the durable store. A failure
// is logged and the in-memory state prevails.
func (l *PaperLedger) persistLocked(ctx context.Context) {
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
		l.logger.Error(ctx, err, "Failed to serialize paper ledger state")
		return
	}
	if err := l.store.Set(ctx, l.key, data); err != nil {
		l.logger.Warn(ctx, "Paper ledger persist failed, continuing in-memory", map[string]interface{}{"error": err.Error()})
	}
}

func (l *PaperLedger) restore(ctx context.Context) error {
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
	l.totalPnL = state.TotalPnL
	l.closed = state.Closed
	if state.Reserved != nil {
		l.reserved = state.Reserved
	}
	if state.Positions != nil {
		l.positions = state.Positions
	}

	l.logger.Info(ctx, "Restored paper ledger state", map[string]interface{}{
		"cash":      l.cash,
		"positions": len(l.positions),
		"total_pnl": l.totalPnL,
	})
	return nil
}

func toPointerMap(in map[string]domain.Position) map[string]*domain.Position {
	out := make(map[string]*domain.Position, len(in))
	for id := range in {
		p := in[id]
		out[id] = &p
	}
	return out
}
