package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyTradeBot/internal/adapters/memstore"
	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
)

type mockVenue struct {
	balance    float64
	balanceErr error
}

func (m *mockVenue) SubmitOrder(_ context.Context, _ string, _ domain.Side, _, _ float64) (string, error) {
	return "venue-ord-1", nil
}
func (m *mockVenue) CancelOrder(_ context.Context, _ string) error { return nil }
func (m *mockVenue) GetOrderStatus(_ context.Context, _ string) (*ports.VenueOrder, error) {
	return nil, errors.New("not implemented")
}
func (m *mockVenue) GetBalance(_ context.Context) (float64, error) {
	return m.balance, m.balanceErr
}

func newTestLive(t *testing.T, venue *mockVenue) *LiveLedger {
	t.Helper()
	l, err := NewLiveLedger(context.Background(), LiveConfig{
		Store:    memstore.New(),
		Venue:    venue,
		Logger:   &testLogger{},
		StoreKey: "test:live",
		StateTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return l
}

func TestLiveLedger_AddDoesNotTouchCash(t *testing.T) {
	ctx := context.Background()
	l := newTestLive(t, &mockVenue{balance: 500})

	require.NoError(t, l.Reconcile(ctx))
	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50, "ord-1"))

	snap := l.Snapshot(nil)
	assert.InDelta(t, 500.0, snap.Cash, 1e-9, "cash is venue-owned, not debited locally")

	pos, found := l.Position("tok-1")
	require.True(t, found)
	assert.Equal(t, []string{"ord-1"}, pos.OrderIDs)
}

func TestLiveLedger_ReconcileRefreshesCash(t *testing.T) {
	ctx := context.Background()
	venue := &mockVenue{balance: 500}
	l := newTestLive(t, venue)

	require.NoError(t, l.Reconcile(ctx))
	assert.InDelta(t, 500.0, l.Snapshot(nil).Cash, 1e-9)

	venue.balance = 480
	require.NoError(t, l.Reconcile(ctx))
	assert.InDelta(t, 480.0, l.Snapshot(nil).Cash, 1e-9)
}

func TestLiveLedger_ReconcileErrorLeavesState(t *testing.T) {
	ctx := context.Background()
	venue := &mockVenue{balance: 500}
	l := newTestLive(t, venue)

	require.NoError(t, l.Reconcile(ctx))
	venue.balanceErr = errors.New("venue down")

	err := l.Reconcile(ctx)
	assert.Error(t, err)
	assert.InDelta(t, 500.0, l.Snapshot(nil).Cash, 1e-9, "failed sync keeps last known balance")
}

func TestLiveLedger_ReserveAgainstKnownBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLive(t, &mockVenue{balance: 100})

	require.NoError(t, l.Reconcile(ctx))
	assert.True(t, l.ReserveCash(ctx, "ord-1", 60))
	assert.False(t, l.ReserveCash(ctx, "ord-2", 60), "would overcommit the known balance")

	l.CancelReserved(ctx, "ord-1")
	assert.True(t, l.ReserveCash(ctx, "ord-2", 60))
}

func TestLiveLedger_SellRealizesPnLWithoutCash(t *testing.T) {
	ctx := context.Background()
	l := newTestLive(t, &mockVenue{balance: 100})

	require.NoError(t, l.Reconcile(ctx))
	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))

	pnl, ok := l.ReducePosition(ctx, "tok-1", 10, 0.60)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pnl, 1e-9)

	snap := l.Snapshot(nil)
	assert.InDelta(t, 100.0, snap.Cash, 1e-9)
	assert.InDelta(t, 1.0, snap.TotalPnL, 1e-9)
	assert.Len(t, snap.ClosedRecent, 1)
}
