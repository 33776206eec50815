package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLimits() Limits {
	return Limits{
		MaxDailyLoss:       50,
		MaxWeeklyLoss:      200,
		MaxPositionSizeUSD: 100,
		MaxPositionPct:     0.20,
		MaxOpenPositions:   3,
		MaxDrawdownPct:     0.15,
	}
}

func TestLimits_DailyLoss(t *testing.T) {
	l := testLimits()

	ok, _ := l.CheckDailyLoss(-49)
	assert.True(t, ok)

	ok, reason := l.CheckDailyLoss(-50)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss limit")

	ok, _ = l.CheckDailyLoss(60)
	assert.True(t, ok, "profit must never trip a loss limit")
}

func TestLimits_WeeklyLoss(t *testing.T) {
	l := testLimits()

	ok, _ := l.CheckWeeklyLoss(-199)
	assert.True(t, ok)

	ok, reason := l.CheckWeeklyLoss(-200)
	assert.False(t, ok)
	assert.Contains(t, reason, "weekly loss limit")
}

func TestLimits_PositionSize(t *testing.T) {
	l := testLimits()

	ok, _ := l.CheckPositionSize(100, 1000)
	assert.True(t, ok)

	ok, reason := l.CheckPositionSize(101, 1000)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds limit")

	// 25% of a small portfolio breaches the percent cap first.
	ok, reason = l.CheckPositionSize(25, 100)
	assert.False(t, ok)
	assert.Contains(t, reason, "of portfolio")
}

func TestLimits_MaxPositions(t *testing.T) {
	l := testLimits()

	ok, _ := l.CheckMaxPositions(2)
	assert.True(t, ok)

	ok, reason := l.CheckMaxPositions(3)
	assert.False(t, ok)
	assert.Contains(t, reason, "max open positions")
}

func TestLimits_Drawdown(t *testing.T) {
	l := testLimits()

	ok, _ := l.CheckDrawdown(0.14)
	assert.True(t, ok)

	ok, reason := l.CheckDrawdown(0.15)
	assert.False(t, ok)
	assert.Contains(t, reason, "drawdown")
}

func TestLimits_CanOpenPositionOrder(t *testing.T) {
	l := testLimits()

	// Both daily loss and position size are violated; daily loss is
	// checked first.
	ok, reason := l.CanOpenPosition(500, 1000, 0, -60, 0, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss limit")

	ok, reason = l.CanOpenPosition(10, 1000, 0, 0, 0, 0)
	assert.True(t, ok)
	assert.Contains(t, reason, "passed")
}
