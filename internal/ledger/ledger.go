// Package ledger owns all money-affecting state: cash, reservations,
// open positions and closed-position history. Nothing else in the system
// mutates these directly.
package ledger

import (
	"context"

	"polyTradeBot/internal/domain"
)

// DustThreshold is the quantity below which a position is considered
// fully closed.
const DustThreshold = 0.001

// ClosedRetention bounds the closed-position history.
const ClosedRetention = 100

// Snapshot is a read-only, internally consistent view of the ledger.
type Snapshot struct {
	Mode           domain.ExecMode             `json:"mode"`
	Cash           float64                     `json:"cash"`
	Reserved       float64                     `json:"reserved"`
	Positions      map[string]*domain.Position `json:"positions"`
	ClosedRecent   []domain.ClosedPosition     `json:"closed_recent"`
	TotalPnL       float64                     `json:"total_pnl"`
	PortfolioValue float64                     `json:"portfolio_value"`
}

// Ledger is the contract shared by the paper and live variants.
// Expected conditions (insufficient cash, missing position) are boolean
// results, not errors.
type Ledger interface {
	Mode() domain.ExecMode
	// AddPosition merges a buy fill into the book using a weighted
	// average. Returns false when the variant enforces cash and the cost
	// cannot be covered.
	AddPosition(ctx context.Context, tokenID string, qty, price float64, orderIDs ...string) bool
	// ReducePosition clamps qty to the held quantity, realizes
	// pnl = (price - avg) * qty, and closes the position when it drops
	// to dust. Returns ok=false when no position exists.
	ReducePosition(ctx context.Context, tokenID string, qty, price float64) (pnl float64, ok bool)
	// ReserveCash earmarks amount against a pending buy order.
	// Fails without mutation when amount exceeds available cash.
	ReserveCash(ctx context.Context, orderID string, amount float64) bool
	// ReleaseReserved drops a reservation without restoring cash.
	// Returns the released amount (0 if unknown order).
	ReleaseReserved(ctx context.Context, orderID string) float64
	// CancelReserved drops a reservation and restores the amount to
	// available cash. Returns the restored amount (0 if unknown order).
	CancelReserved(ctx context.Context, orderID string) float64
	// SettleBuyFill converts a reservation into a position debit in one
	// step. Any difference between the reserved amount and the actual
	// fill cost is returned to cash.
	SettleBuyFill(ctx context.Context, orderID, tokenID string, qty, price float64) bool
	// Position returns a copy of the open position for the token.
	Position(tokenID string) (domain.Position, bool)
	// OpenPositions returns copies of all open positions.
	OpenPositions() map[string]domain.Position
	// PortfolioValue is cash + reserved + marked value of open positions.
	// Tokens missing from prices are marked at their average entry price.
	PortfolioValue(prices map[string]float64) float64
	Snapshot(prices map[string]float64) *Snapshot
	// Reset wipes the book back to its initial state.
	Reset(ctx context.Context)
}
