package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyTradeBot/internal/adapters/memstore"
)

type testLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (l *testLogger) Debug(_ context.Context, _ string, _ ...map[string]interface{}) {}
func (l *testLogger) Info(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (l *testLogger) Warn(_ context.Context, msg string, _ ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}
func (l *testLogger) Error(_ context.Context, _ error, _ string, _ ...map[string]interface{}) {}

func newTestPaper(t *testing.T, cash float64) *PaperLedger {
	t.Helper()
	l, err := NewPaperLedger(context.Background(), PaperConfig{
		Store:       memstore.New(),
		Logger:      &testLogger{},
		InitialCash: cash,
		StoreKey:    "test:ledger",
	})
	require.NoError(t, err)
	return l
}

func TestNewPaperLedger_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewPaperLedger(ctx, PaperConfig{Logger: &testLogger{}, InitialCash: 100, StoreKey: "k"})
	assert.Error(t, err, "missing store")

	_, err = NewPaperLedger(ctx, PaperConfig{Store: memstore.New(), InitialCash: 100, StoreKey: "k"})
	assert.Error(t, err, "missing logger")

	_, err = NewPaperLedger(ctx, PaperConfig{Store: memstore.New(), Logger: &testLogger{}, StoreKey: "k"})
	assert.Error(t, err, "zero initial cash")
}

func TestPaperLedger_BuyCreatesPosition(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	ok := l.AddPosition(ctx, "tok-1", 10, 0.50)
	require.True(t, ok)

	snap := l.Snapshot(nil)
	assert.InDelta(t, 95.0, snap.Cash, 1e-9)

	pos, found := l.Position("tok-1")
	require.True(t, found)
	assert.InDelta(t, 10.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 0.50, pos.AvgPrice, 1e-9)
}

func TestPaperLedger_WeightedAverageMerge(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))
	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.60))

	pos, found := l.Position("tok-1")
	require.True(t, found)
	assert.InDelta(t, 20.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 0.55, pos.AvgPrice, 1e-9)
}

func TestPaperLedger_InsufficientCash(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 4)

	ok := l.AddPosition(ctx, "tok-1", 10, 0.50)
	assert.False(t, ok)

	snap := l.Snapshot(nil)
	assert.InDelta(t, 4.0, snap.Cash, 1e-9, "failed buy must not mutate cash")
	assert.Empty(t, snap.Positions)
}

func TestPaperLedger_SellRealizesPnLAndCloses(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))

	pnl, ok := l.ReducePosition(ctx, "tok-1", 10, 0.60)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pnl, 1e-9)

	_, found := l.Position("tok-1")
	assert.False(t, found, "fully sold position must close")

	snap := l.Snapshot(nil)
	assert.Len(t, snap.ClosedRecent, 1)
	assert.InDelta(t, 1.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 101.0, snap.Cash, 1e-9)
}

func TestPaperLedger_SellClampsToHeldQuantity(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))

	pnl, ok := l.ReducePosition(ctx, "tok-1", 50, 0.60)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pnl, 1e-9, "pnl computed on the clamped quantity")

	snap := l.Snapshot(nil)
	assert.InDelta(t, 101.0, snap.Cash, 1e-9, "only the held quantity converts to cash")
}

func TestPaperLedger_SellWithoutPosition(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	_, ok := l.ReducePosition(ctx, "tok-x", 5, 0.50)
	assert.False(t, ok)
}

func TestPaperLedger_DustClosesPosition(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))
	_, ok := l.ReducePosition(ctx, "tok-1", 9.9995, 0.50)
	require.True(t, ok)

	_, found := l.Position("tok-1")
	assert.False(t, found, "sub-dust remainder must close the position")
}

func TestPaperLedger_ReserveCancelRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.ReserveCash(ctx, "ord-1", 30))
	snap := l.Snapshot(nil)
	assert.InDelta(t, 70.0, snap.Cash, 1e-9)
	assert.InDelta(t, 30.0, snap.Reserved, 1e-9)

	restored := l.CancelReserved(ctx, "ord-1")
	assert.InDelta(t, 30.0, restored, 1e-9)

	snap = l.Snapshot(nil)
	assert.InDelta(t, 100.0, snap.Cash, 1e-9, "cancel must restore cash exactly")
	assert.Zero(t, snap.Reserved)
}

func TestPaperLedger_ReserveOvercommit(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.ReserveCash(ctx, "ord-1", 80))
	assert.False(t, l.ReserveCash(ctx, "ord-2", 30), "second reservation exceeds remaining cash")

	snap := l.Snapshot(nil)
	assert.InDelta(t, 20.0, snap.Cash, 1e-9)
	assert.InDelta(t, 80.0, snap.Reserved, 1e-9)
}

func TestPaperLedger_SettleBuyFillRefundsRemainder(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	// Reserved at the limit price, filled cheaper.
	require.True(t, l.ReserveCash(ctx, "ord-1", 5.0))
	require.True(t, l.SettleBuyFill(ctx, "ord-1", "tok-1", 10, 0.49))

	snap := l.Snapshot(nil)
	assert.Zero(t, snap.Reserved)
	assert.InDelta(t, 95.1, snap.Cash, 1e-9)

	pos, found := l.Position("tok-1")
	require.True(t, found)
	assert.InDelta(t, 0.49, pos.AvgPrice, 1e-9)
	assert.Equal(t, []string{"ord-1"}, pos.OrderIDs)
}

func TestPaperLedger_SettleWithoutReservationChargesCash(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 10)

	require.True(t, l.SettleBuyFill(ctx, "ord-x", "tok-1", 10, 0.50))
	snap := l.Snapshot(nil)
	assert.InDelta(t, 5.0, snap.Cash, 1e-9)

	assert.False(t, l.SettleBuyFill(ctx, "ord-y", "tok-2", 100, 0.50), "uncovered fill is rejected")
}

func TestPaperLedger_PortfolioValue(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 100)

	require.True(t, l.AddPosition(ctx, "tok-1", 10, 0.50))
	require.True(t, l.ReserveCash(ctx, "ord-1", 20))

	// cash 75 + reserved 20 + 10*0.60 marked
	assert.InDelta(t, 101.0, l.PortfolioValue(map[string]float64{"tok-1": 0.60}), 1e-9)
	// missing price falls back to avg entry
	assert.InDelta(t, 100.0, l.PortfolioValue(nil), 1e-9)
}

func TestPaperLedger_NeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	l := newTestPaper(t, 50)

	for i := 0; i < 20; i++ {
		l.AddPosition(ctx, "tok-1", 10, 0.50)
		l.ReducePosition(ctx, "tok-1", 30, 0.40)
	}

	snap := l.Snapshot(nil)
	assert.GreaterOrEqual(t, snap.Cash, 0.0)
	for _, pos := range snap.Positions {
		assert.GreaterOrEqual(t, pos.Quantity, 0.0)
	}
}

func TestPaperLedger_RestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	l1, err := NewPaperLedger(ctx, PaperConfig{
		Store: store, Logger: &testLogger{}, InitialCash: 1000, StoreKey: "k",
	})
	require.NoError(t, err)
	require.True(t, l1.AddPosition(ctx, "tok-1", 10, 0.50))

	l2, err := NewPaperLedger(ctx, PaperConfig{
		Store: store, Logger: &testLogger{}, InitialCash: 1000, StoreKey: "k",
	})
	require.NoError(t, err)

	snap := l2.Snapshot(nil)
	assert.InDelta(t, 995.0, snap.Cash, 1e-9)
	pos, found := l2.Position("tok-1")
	require.True(t, found)
	assert.InDelta(t, 10.0, pos.Quantity, 1e-9)
}
