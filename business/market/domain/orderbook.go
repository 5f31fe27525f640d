package domain

import (
	"github.com/shopspring/decimal"
)

// BookLevel is one (price, size) level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a merged depth snapshot for one symbol. Asks are ascending
// by price, bids descending. Timestamp is exchange milliseconds and is
// non-decreasing per symbol.
type OrderBook struct {
	Symbol    Symbol
	Asks      []BookLevel
	Bids      []BookLevel
	Timestamp int64
}

// BestAsk returns the lowest ask price, or zero when the side is empty.
func (b *OrderBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// BestBid returns the highest bid price, or zero when the side is empty.
func (b *OrderBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}
