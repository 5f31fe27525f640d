package app

import (
	"testing"

	"github.com/shopspring/decimal"

	market "github.com/dpfaria/triarb/business/market/domain"
	routing "github.com/dpfaria/triarb/business/routing/domain"
)

type stubBooks map[string]*market.OrderBook

func (s stubBooks) Get(sym market.Symbol) (*market.OrderBook, bool) {
	b, ok := s[sym.String()]
	return b, ok
}

// stubPairs resolves against a fixed set of listed symbols with the same
// exactly-one-orientation rule the catalog applies.
type stubPairs map[string]bool

func (s stubPairs) PairDetails(from, to market.Currency) (market.Symbol, market.Side, bool) {
	buySym := market.Symbol{Base: to, Quote: from}
	sellSym := market.Symbol{Base: from, Quote: to}
	buyOK := s[buySym.String()]
	sellOK := s[sellSym.String()]
	switch {
	case buyOK && !sellOK:
		return buySym, market.SideBuy, true
	case sellOK && !buyOK:
		return sellSym, market.SideSell, true
	default:
		return market.Symbol{}, "", false
	}
}

func level(price, size string) market.BookLevel {
	return market.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func book(sym string, asks, bids []market.BookLevel) *market.OrderBook {
	parsed, err := market.ParseSymbol(sym)
	if err != nil {
		panic(err)
	}
	return &market.OrderBook{Symbol: parsed, Asks: asks, Bids: bids}
}

func cycle(currencies ...string) routing.Cycle {
	c := make(routing.Cycle, len(currencies))
	for i, cur := range currencies {
		c[i] = market.NewCurrency(cur)
	}
	return c
}

var defaultFee = decimal.RequireFromString("0.001")

func TestSimulateThreeLegCycle(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("10", "1")}, nil),
		"AAA/BBB":  book("AAA/BBB", nil, []market.BookLevel{level("2", "1")}),
		"BBB/USDT": book("BBB/USDT", nil, []market.BookLevel{level("5", "2")}),
	}
	sim := NewSimulator(books, pairs, defaultFee, 100)

	profit, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10))
	if !feasible {
		t.Fatal("cycle should be feasible")
	}

	// 10 USDT -> 0.999 AAA -> 1.996002 BBB -> 9.97002999 USDT.
	want := decimal.RequireFromString("-0.2997001")
	if !profit.Round(7).Equal(want) {
		t.Fatalf("profit = %s, want %s", profit, want)
	}
}

func TestSimulateInsufficientDepth(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("10", "1")}, nil),
		"AAA/BBB":  book("AAA/BBB", nil, []market.BookLevel{level("2", "1")}),
		// Not enough size to absorb the BBB produced by leg two.
		"BBB/USDT": book("BBB/USDT", nil, []market.BookLevel{level("5", "0.5")}),
	}
	sim := NewSimulator(books, pairs, defaultFee, 100)

	if _, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10)); feasible {
		t.Fatal("exhausted depth must be infeasible")
	}
}

func TestSimulateMissingBook(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("10", "1")}, nil),
	}
	sim := NewSimulator(books, pairs, defaultFee, 100)

	if _, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10)); feasible {
		t.Fatal("missing snapshot must be infeasible")
	}
}

func TestSimulateUnresolvablePair(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true}
	sim := NewSimulator(stubBooks{}, pairs, defaultFee, 100)

	if _, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10)); feasible {
		t.Fatal("unresolvable leg must be infeasible")
	}
}

func TestSimulateSkipsZeroPriceLevels(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("0", "5"), level("10", "1")}, nil),
		"AAA/BBB":  book("AAA/BBB", nil, []market.BookLevel{level("2", "1")}),
		"BBB/USDT": book("BBB/USDT", nil, []market.BookLevel{level("0", "9"), level("5", "2")}),
	}
	sim := NewSimulator(books, pairs, defaultFee, 100)

	profit, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10))
	if !feasible {
		t.Fatal("zero-price levels must be skipped, not fatal")
	}
	want := decimal.RequireFromString("-0.2997001")
	if !profit.Round(7).Equal(want) {
		t.Fatalf("profit = %s, want %s", profit, want)
	}
}

func TestSimulateDepthWalkAcrossLevels(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		// First ask level absorbs 5 USDT, the rest fills at a worse price.
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("10", "0.5"), level("12.5", "1")}, nil),
		"AAA/BBB":  book("AAA/BBB", nil, []market.BookLevel{level("2", "5")}),
		"BBB/USDT": book("BBB/USDT", nil, []market.BookLevel{level("5", "10")}),
	}
	sim := NewSimulator(books, pairs, defaultFee, 100)

	profit, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10))
	if !feasible {
		t.Fatal("cycle should be feasible")
	}
	// Leg one fills 0.5 at 10 and 0.4 at 12.5: slippage makes the round
	// trip clearly unprofitable.
	if profit.Sign() >= 0 {
		t.Fatalf("expected a loss, got %s", profit)
	}
}

func TestSimulateMaxLevelsCap(t *testing.T) {
	pairs := stubPairs{"AAA/USDT": true, "AAA/BBB": true, "BBB/USDT": true}
	books := stubBooks{
		// The liquidity exists only past the level cap.
		"AAA/USDT": book("AAA/USDT", []market.BookLevel{level("10", "0.1"), level("10", "0.1"), level("10", "5")}, nil),
		"AAA/BBB":  book("AAA/BBB", nil, []market.BookLevel{level("2", "5")}),
		"BBB/USDT": book("BBB/USDT", nil, []market.BookLevel{level("5", "10")}),
	}
	sim := NewSimulator(books, pairs, defaultFee, 2)

	if _, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.NewFromInt(10)); feasible {
		t.Fatal("depth beyond the level cap must not be visible")
	}
}

func TestSimulateRejectsNonPositiveVolume(t *testing.T) {
	sim := NewSimulator(stubBooks{}, stubPairs{}, defaultFee, 100)
	if _, feasible := sim.Simulate(cycle("USDT", "AAA", "BBB", "USDT"), decimal.Zero); feasible {
		t.Fatal("zero volume must be infeasible")
	}
}
