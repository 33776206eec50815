package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyTradeBot/internal/domain"
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

type mockQuotes struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
	errs   map[string]error
	calls  int
}

func (m *mockQuotes) GetQuote(_ context.Context, tokenID string) (*domain.Quote, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if err, ok := m.errs[tokenID]; ok {
		return nil, err
	}
	if q, ok := m.quotes[tokenID]; ok {
		return q, nil
	}
	return nil, errors.New("no book")
}

func newTestManager(t *testing.T, quotes *mockQuotes) *Manager {
	t.Helper()
	cfg := Config{
		Logger:        &testLogger{},
		TPThreshold:   0.05,
		SLThreshold:   0.05,
		MaxHold:       180 * time.Second,
		ExitOnTimeout: true,
	}
	if quotes != nil {
		cfg.Quotes = quotes
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func openPosition(avg float64, heldFor time.Duration) domain.Position {
	return domain.Position{
		TokenID:  "tok-1",
		Quantity: 10,
		AvgPrice: avg,
		OpenedAt: time.Now().Add(-heldFor),
	}
}

func TestCheckExit_TakeProfit(t *testing.T) {
	m := newTestManager(t, nil)
	positions := map[string]domain.Position{"tok-1": openPosition(0.50, time.Second)}

	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.53})
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitTakeProfit, signals[0].Reason)
	assert.InDelta(t, 0.53, signals[0].CurrentPrice, 1e-9)
	assert.InDelta(t, 0.50, signals[0].AvgPrice, 1e-9)
	assert.InDelta(t, 0.06, signals[0].PnLPct, 1e-9)
	assert.InDelta(t, 10.0, signals[0].Quantity, 1e-9)
}

func TestCheckExit_StopLoss(t *testing.T) {
	m := newTestManager(t, nil)
	positions := map[string]domain.Position{"tok-1": openPosition(0.50, time.Second)}

	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.47})
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitStopLoss, signals[0].Reason)
	assert.InDelta(t, 0.50, signals[0].AvgPrice, 1e-9)
	assert.InDelta(t, -0.06, signals[0].PnLPct, 1e-9)
}

func TestCheckExit_WithinBandsNoExit(t *testing.T) {
	m := newTestManager(t, nil)
	positions := map[string]domain.Position{"tok-1": openPosition(0.50, time.Second)}

	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.51})
	assert.Empty(t, signals)
}

func TestCheckExit_TakeProfitBeatsTimeout(t *testing.T) {
	m := newTestManager(t, nil)
	positions := map[string]domain.Position{"tok-1": openPosition(0.50, 300*time.Second)}

	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.53})
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitTakeProfit, signals[0].Reason, "only the first matching rule fires")
}

func TestCheckExit_Timeout(t *testing.T) {
	m := newTestManager(t, nil)
	positions := map[string]domain.Position{"tok-1": openPosition(0.50, 300*time.Second)}

	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.51})
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitTimeout, signals[0].Reason)
	assert.GreaterOrEqual(t, signals[0].HeldFor, 300*time.Second)
}

func TestCheckExit_TimeoutDisabled(t *testing.T) {
	m, err := NewManager(Config{
		Logger:        &testLogger{},
		TPThreshold:   0.05,
		SLThreshold:   0.05,
		MaxHold:       180 * time.Second,
		ExitOnTimeout: false,
	})
	require.NoError(t, err)

	positions := map[string]domain.Position{"tok-1": openPosition(0.50, 300*time.Second)}
	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-1": 0.51})
	assert.Empty(t, signals)
}

func TestCheckExit_NoPriceTimeoutFallback(t *testing.T) {
	quotes := &mockQuotes{errs: map[string]error{"tok-1": errors.New("venue down")}}
	m := newTestManager(t, quotes)

	positions := map[string]domain.Position{"tok-1": openPosition(0.50, 300*time.Second)}
	signals := m.CheckExitConditions(context.Background(), positions, nil)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitTimeoutNoPrice, signals[0].Reason)
	assert.InDelta(t, 0.50, signals[0].CurrentPrice, 1e-9, "avg entry used as fallback price")
	assert.InDelta(t, 0.50, signals[0].AvgPrice, 1e-9)
	assert.Zero(t, signals[0].PnLPct, "no fresh price, no measurable pnl")
}

func TestCheckExit_NoPriceNotOverdueSkipped(t *testing.T) {
	quotes := &mockQuotes{errs: map[string]error{"tok-1": errors.New("venue down")}}
	m := newTestManager(t, quotes)

	positions := map[string]domain.Position{"tok-1": openPosition(0.50, 10*time.Second)}
	signals := m.CheckExitConditions(context.Background(), positions, nil)
	assert.Empty(t, signals)
}

func TestCheckExit_InvalidPositionSkipped(t *testing.T) {
	logger := &testLogger{}
	m, err := NewManager(Config{
		Logger:        logger,
		TPThreshold:   0.05,
		SLThreshold:   0.05,
		MaxHold:       180 * time.Second,
		ExitOnTimeout: true,
	})
	require.NoError(t, err)

	positions := map[string]domain.Position{
		"tok-bad": {TokenID: "tok-bad", Quantity: 10, AvgPrice: 0, OpenedAt: time.Now().Add(-time.Hour)},
	}
	signals := m.CheckExitConditions(context.Background(), positions, map[string]float64{"tok-bad": 0.50})
	assert.Empty(t, signals, "zero avg price must never exit")
	assert.NotEmpty(t, logger.warnings)
}

func TestCheckExit_FetchesMissingQuotes(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]*domain.Quote{
		"tok-1": {
			TokenID: "tok-1",
			Bids:    []domain.BookLevel{{Price: 0.52, Size: 100}},
			Asks:    []domain.BookLevel{{Price: 0.54, Size: 100}},
		},
	}}
	m := newTestManager(t, quotes)

	positions := map[string]domain.Position{"tok-1": openPosition(0.50, time.Second)}
	signals := m.CheckExitConditions(context.Background(), positions, nil)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitTakeProfit, signals[0].Reason)
	assert.InDelta(t, 0.53, signals[0].CurrentPrice, 1e-9, "mid of fetched book")
	assert.Equal(t, 1, quotes.calls)
}
