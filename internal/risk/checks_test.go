package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"polyTradeBot/internal/domain"
)

func testQuote() *domain.Quote {
	return &domain.Quote{
		TokenID: "tok-1",
		Bids: []domain.BookLevel{
			{Price: 0.48, Size: 100},
			{Price: 0.50, Size: 200}, // book arrives unsorted
		},
		Asks: []domain.BookLevel{
			{Price: 0.54, Size: 150},
			{Price: 0.52, Size: 100},
		},
	}
}

func testChecks() QuoteChecks {
	return QuoteChecks{MaxSpread: 0.05, MinDepthUSD: 50, PriceTolerance: 0.10}
}

func TestChecks_BestPricesFromUnsortedBook(t *testing.T) {
	q := testQuote()
	assert.InDelta(t, 0.50, q.BestBid(), 1e-9, "best bid is the maximum bid")
	assert.InDelta(t, 0.52, q.BestAsk(), 1e-9, "best ask is the minimum ask")
	assert.InDelta(t, 0.51, q.Mid(), 1e-9)
}

func TestChecks_Spread(t *testing.T) {
	c := testChecks()

	ok, _ := c.CheckSpread(testQuote())
	assert.True(t, ok)

	wide := testQuote()
	wide.Asks = []domain.BookLevel{{Price: 0.60, Size: 100}}
	ok, reason := c.CheckSpread(wide)
	assert.False(t, ok)
	assert.Contains(t, reason, "spread too wide")

	empty := &domain.Quote{TokenID: "tok-1", Bids: []domain.BookLevel{{Price: 0.50, Size: 10}}}
	ok, _ = c.CheckSpread(empty)
	assert.False(t, ok, "one-sided book fails")
}

func TestChecks_Depth(t *testing.T) {
	c := testChecks()

	ok, _ := c.CheckDepth(testQuote())
	assert.True(t, ok)

	thin := &domain.Quote{
		TokenID: "tok-1",
		Bids:    []domain.BookLevel{{Price: 0.50, Size: 10}},
		Asks:    []domain.BookLevel{{Price: 0.52, Size: 10}},
	}
	ok, reason := c.CheckDepth(thin)
	assert.False(t, ok)
	assert.Contains(t, reason, "insufficient depth")
}

func TestChecks_DepthIgnoresExtremePrices(t *testing.T) {
	c := testChecks()

	q := &domain.Quote{
		TokenID: "tok-1",
		Bids:    []domain.BookLevel{{Price: 0.01, Size: 100000}},
		Asks:    []domain.BookLevel{{Price: 0.99, Size: 100000}},
	}
	ok, _ := c.CheckDepth(q)
	assert.False(t, ok, "size outside the band does not count")
}

func TestChecks_PriceTolerance(t *testing.T) {
	c := testChecks()
	q := testQuote() // best ask 0.52, best bid 0.50

	ok, _ := c.CheckPrice(q, domain.Buy, 0.53)
	assert.True(t, ok)

	ok, reason := c.CheckPrice(q, domain.Buy, 0.65) // 25% above best ask
	assert.False(t, ok)
	assert.Contains(t, reason, "from best opposing price")

	ok, _ = c.CheckPrice(q, domain.Sell, 0.49)
	assert.True(t, ok)

	ok, _ = c.CheckPrice(q, domain.Sell, 0.30) // 40% below best bid
	assert.False(t, ok)
}
