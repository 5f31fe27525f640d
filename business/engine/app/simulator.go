// Package app contains the cycle simulator, the sequential executor, the
// engine loop and its supervisor.
package app

import (
	"github.com/shopspring/decimal"

	market "github.com/dpfaria/triarb/business/market/domain"
	routing "github.com/dpfaria/triarb/business/routing/domain"
)

// BookSource is the read side of the order-book cache.
type BookSource interface {
	Get(sym market.Symbol) (*market.OrderBook, bool)
}

// PairResolver maps a currency movement onto a market and taker side.
type PairResolver interface {
	PairDetails(from, to market.Currency) (market.Symbol, market.Side, bool)
}

// Simulator computes the realised round-trip rate of a cycle against the
// cached book depth. It performs no I/O and never mutates the cache.
type Simulator struct {
	books     BookSource
	pairs     PairResolver
	takerFee  decimal.Decimal
	maxLevels int
}

// NewSimulator creates a Simulator with the given taker fee (a fraction,
// e.g. 0.001) and the maximum book depth it may walk per leg.
func NewSimulator(books BookSource, pairs PairResolver, takerFee decimal.Decimal, maxLevels int) *Simulator {
	return &Simulator{
		books:     books,
		pairs:     pairs,
		takerFee:  takerFee,
		maxLevels: maxLevels,
	}
}

var oneHundred = decimal.NewFromInt(100)

// Simulate walks every leg of the cycle with the initial notional v0 in
// the cycle's base currency. It returns the realised profit percentage
// ((vn-v0)/v0)*100 and true, or zero and false when the cycle is
// infeasible: a missing snapshot, an unresolvable pair, or book depth
// exhausted before the leg input was consumed.
func (s *Simulator) Simulate(cycle routing.Cycle, v0 decimal.Decimal) (decimal.Decimal, bool) {
	if v0.Sign() <= 0 {
		return decimal.Zero, false
	}

	feeKeep := decimal.NewFromInt(1).Sub(s.takerFee)
	current := v0

	for _, leg := range cycle.Legs() {
		sym, side, ok := s.pairs.PairDetails(leg.From, leg.To)
		if !ok {
			return decimal.Zero, false
		}
		book, ok := s.books.Get(sym)
		if !ok {
			return decimal.Zero, false
		}

		var out decimal.Decimal
		if side == market.SideBuy {
			out, ok = s.walkAsks(book.Asks, current)
		} else {
			out, ok = s.walkBids(book.Bids, current)
		}
		if !ok {
			return decimal.Zero, false
		}

		current = out.Mul(feeKeep)
	}

	return current.Sub(v0).Div(v0).Mul(oneHundred), true
}

// walkAsks spends `quote` across the ask ladder and returns the base
// acquired. Levels with a zero price are skipped.
func (s *Simulator) walkAsks(asks []market.BookLevel, quote decimal.Decimal) (decimal.Decimal, bool) {
	remaining := quote
	acquired := decimal.Zero

	for i, level := range asks {
		if i >= s.maxLevels {
			break
		}
		if level.Price.Sign() == 0 {
			continue
		}
		levelCost := level.Price.Mul(level.Size)
		if levelCost.GreaterThanOrEqual(remaining) {
			acquired = acquired.Add(remaining.Div(level.Price))
			return acquired, true
		}
		acquired = acquired.Add(level.Size)
		remaining = remaining.Sub(levelCost)
	}
	return decimal.Zero, false
}

// walkBids sells `base` into the bid ladder and returns the quote received.
func (s *Simulator) walkBids(bids []market.BookLevel, base decimal.Decimal) (decimal.Decimal, bool) {
	remaining := base
	received := decimal.Zero

	for i, level := range bids {
		if i >= s.maxLevels {
			break
		}
		if level.Price.Sign() == 0 {
			continue
		}
		if level.Size.GreaterThanOrEqual(remaining) {
			received = received.Add(remaining.Mul(level.Price))
			return received, true
		}
		received = received.Add(level.Size.Mul(level.Price))
		remaining = remaining.Sub(level.Size)
	}
	return decimal.Zero, false
}
