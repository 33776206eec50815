package ledger

import (
	"time"

	"polyTradeBot/internal/domain"
)

// persistedState is the JSON blob written to the durable store on every
// mutation. It is the full ledger, not a delta.
type persistedState struct {
	Cash      float64                     `json:"cash"`
	Reserved  map[string]float64          `json:"reserved"`
	Positions map[string]*domain.Position `json:"positions"`
	Closed    []domain.ClosedPosition     `json:"closed_positions"`
	TotalPnL  float64                     `json:"total_pnl"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// mergeBuy folds a buy fill into positions with a volume-weighted
// average. Caller holds the ledger lock.
func mergeBuy(positions map[string]*domain.Position, tokenID string, qty, price float64, now time.Time, orderIDs []string) {
	pos, ok := positions[tokenID]
	if !ok {
		positions[tokenID] = &domain.Position{
			TokenID:   tokenID,
			Quantity:  qty,
			AvgPrice:  price,
			CostBasis: qty * price,
			OpenedAt:  now,
			UpdatedAt: now,
			OrderIDs:  append([]string(nil), orderIDs...),
		}
		return
	}

	newQty := pos.Quantity + qty
	pos.AvgPrice = (pos.AvgPrice*pos.Quantity + price*qty) / newQty
	pos.Quantity = newQty
	pos.CostBasis += qty * price
	pos.UpdatedAt = now
	pos.OrderIDs = append(pos.OrderIDs, orderIDs...)
}

// reduceSell clamps qty to the held quantity, realizes pnl against the
// average entry price and closes the position once it drops to dust.
// Returns the realized pnl, the sold quantity, and the closed record
// (nil while the position stays open). Caller holds the ledger lock.
func reduceSell(positions map[string]*domain.Position, tokenID string, qty, price float64, now time.Time) (pnl, sold float64, closed *domain.ClosedPosition, ok bool) {
	pos, exists := positions[tokenID]
	if !exists || pos.Quantity <= 0 {
		return 0, 0, nil, false
	}

	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	pnl = (price - pos.AvgPrice) * qty
	pos.Quantity -= qty
	pos.CostBasis -= pos.AvgPrice * qty
	pos.UpdatedAt = now

	if pos.Quantity <= DustThreshold {
		closed = &domain.ClosedPosition{
			TokenID:     tokenID,
			Quantity:    qty,
			AvgPrice:    pos.AvgPrice,
			ExitPrice:   price,
			RealizedPnL: pnl,
			OpenedAt:    pos.OpenedAt,
			ClosedAt:    now,
		}
		delete(positions, tokenID)
	}

	return pnl, qty, closed, true
}

// appendClosed appends a closed record, keeping only the most recent
// ClosedRetention entries.
func appendClosed(closed []domain.ClosedPosition, rec domain.ClosedPosition) []domain.ClosedPosition {
	closed = append(closed, rec)
	if len(closed) > ClosedRetention {
		closed = closed[len(closed)-ClosedRetention:]
	}
	return closed
}

// copyPositions returns value copies safe to hand to callers.
func copyPositions(positions map[string]*domain.Position) map[string]domain.Position {
	out := make(map[string]domain.Position, len(positions))
	for id, pos := range positions {
		p := *pos
		p.OrderIDs = append([]string(nil), pos.OrderIDs...)
		out[id] = p
	}
	return out
}

// markValue sums qty*price over open positions, falling back to the
// average entry price for tokens absent from prices.
func markValue(positions map[string]*domain.Position, prices map[string]float64) float64 {
	total := 0.0
	for id, pos := range positions {
		price := pos.AvgPrice
		if p, ok := prices[id]; ok && p > 0 {
			price = p
		}
		total += pos.Quantity * price
	}
	return total
}

func sumReserved(reserved map[string]float64) float64 {
	total := 0.0
	for _, amt := range reserved {
		total += amt
	}
	return total
}
