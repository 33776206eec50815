package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyTradeBot/internal/domain"
)

type testLogger struct{}

func (testLogger) Debug(_ context.Context, _ string, _ ...map[string]interface{})          {}
func (testLogger) Info(_ context.Context, _ string, _ ...map[string]interface{})           {}
func (testLogger) Warn(_ context.Context, _ string, _ ...map[string]interface{})           {}
func (testLogger) Error(_ context.Context, _ error, _ string, _ ...map[string]interface{}) {}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "trades.db"),
		Logger: testLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(tokenID string, pnl float64, exitTime time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		TokenID:    tokenID,
		EntryPrice: 0.50,
		ExitPrice:  0.50 + pnl/10,
		Quantity:   10,
		PnL:        pnl,
		ExitReason: domain.ExitTakeProfit,
		EntryTime:  exitTime.Add(-time.Minute),
		ExitTime:   exitTime,
	}
}

func TestCreateTradeAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := repo.CreateTrade(ctx, record("tok-1", 1.0, now))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = repo.CreateTrade(ctx, record("tok-2", -0.5, now.Add(time.Second)))
	require.NoError(t, err)

	trades, err := repo.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "tok-2", trades[0].TokenID, "newest first")
	assert.Equal(t, domain.ExitTakeProfit, trades[0].ExitReason)
}

func TestPnLSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.CreateTrade(ctx, record("tok-1", 5.0, now.Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, record("tok-1", -2.0, now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, record("tok-2", 1.0, now))
	require.NoError(t, err)

	daily, err := repo.PnLSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, daily, 1e-9, "only trades inside the window count")

	all, err := repo.PnLSince(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, all, 1e-9)
}

func TestPnLSince_EmptyHistory(t *testing.T) {
	repo := newTestRepo(t)

	pnl, err := repo.PnLSince(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pnl)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, pnl := range []float64{2.0, 4.0, -1.0, -3.0, 6.0} {
		_, err := repo.CreateTrade(ctx, record("tok-1", pnl, now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Wins)
	assert.Equal(t, 2, stats.Losses)
	assert.InDelta(t, 0.6, stats.WinRate, 1e-9)
	assert.InDelta(t, 4.0, stats.AvgWin, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgLoss, 1e-9, "avg loss is a positive magnitude")
}

func TestStats_EmptyHistory(t *testing.T) {
	repo := newTestRepo(t)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.WinRate)
}
