package risk

import "fmt"

// Limits holds the hard capital-preservation caps. Every check is a pure
// function returning (allowed, reason); CanOpenPosition composes them in
// a fixed order and short-circuits on the first failure.
type Limits struct {
	MaxDailyLoss       float64
	MaxWeeklyLoss      float64
	MaxPositionSizeUSD float64
	MaxPositionPct     float64
	MaxOpenPositions   int
	MaxDrawdownPct     float64
}

// CheckDailyLoss denies once the day's realized loss reaches the cap.
func (l Limits) CheckDailyLoss(dailyPnL float64) (bool, string) {
	if dailyPnL < 0 && -dailyPnL >= l.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: $%.2f >= $%.2f", -dailyPnL, l.MaxDailyLoss)
	}
	return true, "OK"
}

// CheckWeeklyLoss denies once the rolling-week realized loss reaches the cap.
func (l Limits) CheckWeeklyLoss(weeklyPnL float64) (bool, string) {
	if weeklyPnL < 0 && -weeklyPnL >= l.MaxWeeklyLoss {
		return false, fmt.Sprintf("weekly loss limit reached: $%.2f >= $%.2f", -weeklyPnL, l.MaxWeeklyLoss)
	}
	return true, "OK"
}

// CheckPositionSize enforces the absolute USD cap and the
// percent-of-portfolio cap.
func (l Limits) CheckPositionSize(orderSizeUSD, portfolioValue float64) (bool, string) {
	if orderSizeUSD > l.MaxPositionSizeUSD {
		return false, fmt.Sprintf("position size exceeds limit: $%.2f > $%.2f", orderSizeUSD, l.MaxPositionSizeUSD)
	}
	if portfolioValue > 0 {
		positionPct := orderSizeUSD / portfolioValue
		if positionPct > l.MaxPositionPct {
			return false, fmt.Sprintf("position exceeds %.0f%% of portfolio: %.1f%%", l.MaxPositionPct*100, positionPct*100)
		}
	}
	return true, "OK"
}

// CheckMaxPositions caps the number of concurrently open positions.
func (l Limits) CheckMaxPositions(openPositions int) (bool, string) {
	if openPositions >= l.MaxOpenPositions {
		return false, fmt.Sprintf("max open positions reached: %d >= %d", openPositions, l.MaxOpenPositions)
	}
	return true, "OK"
}

// CheckDrawdown denies once the current drawdown fraction reaches the cap.
func (l Limits) CheckDrawdown(currentDrawdownPct float64) (bool, string) {
	if currentDrawdownPct >= l.MaxDrawdownPct {
		return false, fmt.Sprintf("max drawdown exceeded: %.1f%% >= %.1f%%", currentDrawdownPct*100, l.MaxDrawdownPct*100)
	}
	return true, "OK"
}

// CanOpenPosition runs every limit in order: daily loss, weekly loss,
// position size, max positions, drawdown. Returns the first failure.
func (l Limits) CanOpenPosition(orderSizeUSD, portfolioValue float64, openPositions int, dailyPnL, weeklyPnL, drawdownPct float64) (bool, string) {
	if ok, reason := l.CheckDailyLoss(dailyPnL); !ok {
		return false, reason
	}
	if ok, reason := l.CheckWeeklyLoss(weeklyPnL); !ok {
		return false, reason
	}
	if ok, reason := l.CheckPositionSize(orderSizeUSD, portfolioValue); !ok {
		return false, reason
	}
	if ok, reason := l.CheckMaxPositions(openPositions); !ok {
		return false, reason
	}
	if ok, reason := l.CheckDrawdown(drawdownPct); !ok {
		return false, reason
	}
	return true, "all risk checks passed"
}
