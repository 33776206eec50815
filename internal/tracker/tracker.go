// Package tracker watches placed orders until they fill, expire or are
// cancelled. It is the only component that turns a pending order into a
// ledger mutation signal.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fillMatchRatio is the matched fraction at which a live order counts
// as filled even when the venue has not flipped its status yet.
const fillMatchRatio = 0.99

// Config holds the dependencies and parameters for the tracker.
type Config struct {
	Store    ports.StateStore
	Logger   ports.Logger
	Venue    ports.VenueClient // required for real-mode fill checks
	StoreKey string
	StateTTL time.Duration
}

// Stats summarizes tracked orders by state.
type Stats struct {
	Open      int `json:"open"`
	Filled    int `json:"filled"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
	Total     int `json:"total"`
}

// Tracker is the GTC order state machine.
type Tracker struct {
	mu     sync.Mutex
	orders map[string]*domain.TrackedOrder

	store  ports.StateStore
	logger ports.Logger
	venue  ports.VenueClient
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// New creates a tracker, restoring prior orders from the durable store
// when present.
func New(ctx context.Context, cfg Config) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
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

	t := &Tracker{
		orders: make(map[string]*domain.TrackedOrder),
		store:  cfg.Store,
		logger: cfg.Logger,
		venue:  cfg.Venue,
		key:    cfg.StoreKey,
		ttl:    cfg.StateTTL,
		now:    time.Now,
	}

	if err := t.restore(ctx); err != nil {
		cfg.Logger.Warn(ctx, "Could not restore order tracker, starting fresh", map[string]interface{}{"error": err.Error()})
	}

	return t, nil
}

// AddOrder registers an order as open. A missing id is generated.
// Returns the order id.
func (t *Tracker) AddOrder(ctx context.Context, order domain.TrackedOrder) (string, error) {
	if order.TokenID == "" {
		return "", fmt.Errorf("%w: token id is required", ports.ErrInvalidRequest)
	}
	if order.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", ports.ErrInvalidRequest)
	}
	if order.LimitPrice <= 0 || order.LimitPrice >= 1 {
		return "", fmt.Errorf("%w: limit price must be a probability in (0,1)", ports.ErrInvalidRequest)
	}
	if order.Side != domain.Buy && order.Side != domain.Sell {
		return "", fmt.Errorf("%w: invalid order side %q", ports.ErrInvalidRequest, order.Side)
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Status = domain.OrderOpen
	if order.CreatedAt.IsZero() {
		order.CreatedAt = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[order.ID] = &order
	t.persistLocked(ctx)

	t.logger.Info(ctx, "Tracking order", map[string]interface{}{
		"order_id": order.ID,
		"token_id": order.TokenID,
		"side":     order.Side,
		"limit":    order.LimitPrice,
		"qty":      order.Quantity,
	})
	return order.ID, nil
}

// CheckFillsSimulated advances open simulated orders against current
// prices. Timeout takes precedence over the fill test; orders whose
// token has no price this cycle are held open unless overdue.
func (t *Tracker) CheckFillsSimulated(ctx context.Context, prices map[string]float64, maxAge time.Duration) []*domain.FillResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var fills []*domain.FillResult
	changed := false

	for _, order := range t.orders {
		if order.Status != domain.OrderOpen {
			continue
		}

		if (maxAge > 0 && order.Age(now) > maxAge) || order.TimedOut(now) {
			order.Status = domain.OrderExpired
			changed = true
			t.logger.Info(ctx, "Order expired", map[string]interface{}{
				"order_id": order.ID,
				"age_s":    order.Age(now).Seconds(),
			})
			continue
		}

		price, ok := prices[order.TokenID]
		if !ok || price <= 0 {
			continue
		}

		filled := (order.Side == domain.Buy && price <= order.LimitPrice) ||
			(order.Side == domain.Sell && price >= order.LimitPrice)
		if !filled {
			continue
		}

		order.Status = domain.OrderFilled
		order.FilledAt = now
		order.FillPrice = price
		changed = true

		fills = append(fills, &domain.FillResult{
			OrderID:   order.ID,
			TokenID:   order.TokenID,
			Side:      order.Side,
			Status:    domain.OrderFilled,
			FillPrice: price,
			Quantity:  order.Quantity,
		})
	}

	if changed {
		t.persistLocked(ctx)
	}
	return fills
}

// CheckFillsReal queries the venue for every open order. Per-order
// failures are logged and counted, never abort the scan; the error
// count feeds the breaker's API-error condition.
func (t *Tracker) CheckFillsReal(ctx context.Context, maxAge time.Duration) ([]*domain.FillResult, int) {
	if t.venue == nil {
		t.logger.Warn(ctx, "Real fill check requested without a venue client")
		return nil, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var fills []*domain.FillResult
	venueErrors := 0
	changed := false

	for _, order := range t.orders {
		if order.Status != domain.OrderOpen {
			continue
		}

		if (maxAge > 0 && order.Age(now) > maxAge) || order.TimedOut(now) {
			order.Status = domain.OrderExpired
			changed = true
			if err := t.venue.CancelOrder(ctx, venueOrderID(order)); err != nil {
				t.logger.Warn(ctx, "Could not cancel expired order at venue", map[string]interface{}{
					"order_id": order.ID,
					"error":    err.Error(),
				})
			}
			continue
		}

		status, err := t.venue.GetOrderStatus(ctx, venueOrderID(order))
		if err != nil {
			venueErrors++
			t.logger.Warn(ctx, "Order status check failed", map[string]interface{}{
				"order_id": order.ID,
				"error":    err.Error(),
			})
			continue
		}

		switch {
		case status.Status == "matched" || status.Status == "filled" ||
			(status.OriginalSize > 0 && status.SizeMatched >= fillMatchRatio*status.OriginalSize):
			price := status.AvgPrice
			if price <= 0 {
				price = order.LimitPrice
			}
			// Settle what the venue actually matched. A fill at the 99%
			// threshold would otherwise overstate the position.
			qty := status.SizeMatched
			if qty <= 0 {
				qty = order.Quantity
			}
			order.Status = domain.OrderFilled
			order.FilledAt = now
			order.FillPrice = price
			changed = true

			fills = append(fills, &domain.FillResult{
				OrderID:   order.ID,
				TokenID:   order.TokenID,
				Side:      order.Side,
				Status:    domain.OrderFilled,
				FillPrice: price,
				Quantity:  qty,
			})
		case status.Status == "cancelled":
			order.Status = domain.OrderCancelled
			changed = true
		}
	}

	if changed {
		t.persistLocked(ctx)
	}
	return fills, venueErrors
}

// GetOpenOrders returns copies of all non-terminal orders.
func (t *Tracker) GetOpenOrders() []domain.TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.TrackedOrder
	for _, order := range t.orders {
		if order.Status == domain.OrderOpen {
			out = append(out, *order)
		}
	}
	return out
}

// TerminalOrders returns copies of all filled, cancelled or expired
// orders still held in the tracker.
func (t *Tracker) TerminalOrders() []domain.TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.TrackedOrder
	for _, order := range t.orders {
		if order.Status.IsTerminal() {
			out = append(out, *order)
		}
	}
	return out
}

// GetOrder returns a copy of one order.
func (t *Tracker) GetOrder(id string) (domain.TrackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[id]
	if !ok {
		return domain.TrackedOrder{}, false
	}
	return *order, true
}

// RemoveOrder drops an order from tracking.
func (t *Tracker) RemoveOrder(ctx context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[id]; !ok {
		return false
	}
	delete(t.orders, id)
	t.persistLocked(ctx)
	return true
}

// Stats counts orders by state.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Stats
	for _, order := range t.orders {
		switch order.Status {
		case domain.OrderOpen:
			s.Open++
		case domain.OrderFilled:
			s.Filled++
		case domain.OrderCancelled:
			s.Cancelled++
		case domain.OrderExpired:
			s.Expired++
		}
	}
	s.Total = len(t.orders)
	return s
}

// PurgeCompleted drops terminal orders older than retention. Returns the
// number removed.
func (t *Tracker) PurgeCompleted(ctx context.Context, retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id, order := range t.orders {
		if order.Status.IsTerminal() && order.Age(now) > retention {
			delete(t.orders, id)
			removed++
		}
	}
	if removed > 0 {
		t.persistLocked(ctx)
	}
	return removed
}

func venueOrderID(order *domain.TrackedOrder) string {
	if order.VenueID != "" {
		return order.VenueID
	}
	return order.ID
}

func (t *Tracker) persistLocked(ctx context.Context) {
	data, err := json.Marshal(t.orders)
	if err != nil {
		t.logger.Error(ctx, err, "Failed to serialize tracker state")
		return
	}
	if err := t.store.SetWithTTL(ctx, t.key, data, t.ttl); err != nil {
		t.logger.Warn(ctx, "Tracker persist failed, continuing in-memory", map[string]interface{}{"error": err.Error()})
	}
}

func (t *Tracker) restore(ctx context.Context) error {
	data, err := t.store.Get(ctx, t.key)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	orders := make(map[string]*domain.TrackedOrder)
	if err := json.Unmarshal(data, &orders); err != nil {
		return err
	}
	t.orders = orders

	t.logger.Info(ctx, "Restored tracked orders", map[string]interface{}{"count": len(orders)})
	return nil
}
