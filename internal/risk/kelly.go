package risk

import (
	"math"

	"polyTradeBot/internal/domain"
)

// kellyPortfolioCap caps the adjusted Kelly fraction at half the portfolio.
const kellyPortfolioCap = 0.5

// minTradesForKelly is the history size below which win-rate statistics
// are too noisy to trust.
const minTradesForKelly = 10

// KellySizer computes position sizes from historical edge.
//
// f = (b*p - q) / b, where p is the win rate, q = 1-p and b is the
// average-win to average-loss ratio. A negative f means no edge.
type KellySizer struct {
	Fraction      float64 // fractional Kelly multiplier, e.g. 0.25
	MinSizeUSD    float64
	MaxSizeUSD    float64
	FixedOrderUSD float64 // fallback size when history is too thin
}

// Size returns the recommended position size in USD for the given
// portfolio value and decision confidence. Returns 0 when the statistics
// show no edge.
func (k KellySizer) Size(stats *domain.TradeStats, portfolioValue, confidence float64) float64 {
	if stats == nil || stats.Total < minTradesForKelly {
		return k.clamp(k.FixedOrderUSD)
	}

	base := k.baseSize(stats, portfolioValue)
	if base == 0 {
		return 0
	}

	// 0 confidence halves the size, full confidence keeps it.
	confidenceAdj := 0.5 + confidence*0.5
	return k.clamp(base * confidenceAdj)
}

func (k KellySizer) baseSize(stats *domain.TradeStats, portfolioValue float64) float64 {
	p := stats.WinRate
	if p <= 0 || p >= 1 {
		return k.MinSizeUSD
	}
	if stats.AvgWin <= 0 || stats.AvgLoss <= 0 {
		return k.MinSizeUSD
	}

	q := 1 - p
	b := stats.AvgWin / stats.AvgLoss
	kellyPct := (b*p - q) / b
	if kellyPct <= 0 {
		return 0
	}

	adjusted := math.Min(kellyPct*k.Fraction, kellyPortfolioCap)
	return k.clamp(portfolioValue * adjusted)
}

func (k KellySizer) clamp(size float64) float64 {
	size = math.Max(k.MinSizeUSD, size)
	size = math.Min(k.MaxSizeUSD, size)
	return math.Round(size*100) / 100
}
