package risk

import (
	"fmt"
	"math"

	"polyTradeBot/internal/domain"
)

// Tradeable band for depth measurement. Resting size outside it is
// mostly noise on probability books.
const (
	depthBandLow  = 0.05
	depthBandHigh = 0.95
)

// QuoteChecks validates order book quality before an order is placed.
type QuoteChecks struct {
	MaxSpread      float64
	MinDepthUSD    float64
	PriceTolerance float64 // max relative distance from the best opposing price
}

// CheckSpread denies books wider than the configured maximum.
func (c QuoteChecks) CheckSpread(quote *domain.Quote) (bool, string) {
	bid, ask := quote.BestBid(), quote.BestAsk()
	if bid <= 0 || ask <= 0 {
		return false, "order book is one-sided or empty"
	}
	spread := ask - bid
	if spread > c.MaxSpread {
		return false, fmt.Sprintf("spread too wide: %.3f > %.3f", spread, c.MaxSpread)
	}
	return true, "OK"
}

// CheckDepth requires minimum two-sided resting value inside the band.
func (c QuoteChecks) CheckDepth(quote *domain.Quote) (bool, string) {
	depth := quote.DepthUSD(depthBandLow, depthBandHigh)
	if depth < c.MinDepthUSD {
		return false, fmt.Sprintf("insufficient depth: $%.2f < $%.2f", depth, c.MinDepthUSD)
	}
	return true, "OK"
}

// CheckPrice denies limit prices further than the tolerance from the
// best opposing price: the ask for buys, the bid for sells.
func (c QuoteChecks) CheckPrice(quote *domain.Quote, side domain.Side, limitPrice float64) (bool, string) {
	var opposing float64
	if side == domain.Buy {
		opposing = quote.BestAsk()
	} else {
		opposing = quote.BestBid()
	}
	if opposing <= 0 {
		return false, "no opposing side in the order book"
	}

	distance := math.Abs(limitPrice-opposing) / opposing
	if distance > c.PriceTolerance {
		return false, fmt.Sprintf("limit price %.3f is %.1f%% from best opposing price %.3f", limitPrice, distance*100, opposing)
	}
	return true, "OK"
}

// CheckAll runs spread, depth and price checks in order.
func (c QuoteChecks) CheckAll(quote *domain.Quote, side domain.Side, limitPrice float64) (bool, string) {
	if ok, reason := c.CheckSpread(quote); !ok {
		return false, reason
	}
	if ok, reason := c.CheckDepth(quote); !ok {
		return false, reason
	}
	if ok, reason := c.CheckPrice(quote, side, limitPrice); !ok {
		return false, reason
	}
	return true, "OK"
}
