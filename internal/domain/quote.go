package domain

import "time"

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Quote is a snapshot of the order book for one outcome token.
// The venue returns levels in reverse order, so the best bid is the
// maximum bid price and the best ask is the minimum ask price.
type Quote struct {
	TokenID   string      `json:"token_id"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// BestBid returns the highest bid price, or 0 if the bid side is empty.
func (q *Quote) BestBid() float64 {
	best := 0.0
	for _, l := range q.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 if the ask side is empty.
func (q *Quote) BestAsk() float64 {
	best := 0.0
	for _, l := range q.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// Mid returns the midpoint of the best bid and ask, or 0 when either
// side is empty.
func (q *Quote) Mid() float64 {
	bid, ask := q.BestBid(), q.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns best ask minus best bid, or 0 when either side is empty.
func (q *Quote) Spread() float64 {
	bid, ask := q.BestBid(), q.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return ask - bid
}

// DepthUSD sums price*size across both sides, counting only levels with
// prices inside the tradeable band. Levels at the extremes are illusory
// liquidity on probability books.
func (q *Quote) DepthUSD(bandLow, bandHigh float64) float64 {
	total := 0.0
	for _, l := range q.Bids {
		if l.Price >= bandLow && l.Price <= bandHigh {
			total += l.Price * l.Size
		}
	}
	for _, l := range q.Asks {
		if l.Price >= bandLow && l.Price <= bandHigh {
			total += l.Price * l.Size
		}
	}
	return total
}
