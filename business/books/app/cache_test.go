package app

import (
	"testing"
	"time"

	market "github.com/dpfaria/triarb/business/market/domain"
)

func sym(s string) market.Symbol {
	parsed, err := market.ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestCacheLastWriterWins(t *testing.T) {
	cache := NewCache()
	s := sym("BTC/USDT")

	first := &market.OrderBook{Symbol: s, Timestamp: 1}
	second := &market.OrderBook{Symbol: s, Timestamp: 2}

	cache.Set(s, first)
	cache.Set(s, second)

	got, ok := cache.Get(s)
	if !ok {
		t.Fatal("expected a cached book")
	}
	if got != second {
		t.Errorf("got timestamp %d, want the later snapshot", got.Timestamp)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache := NewCache()
	a, b := sym("AAA/USDT"), sym("BBB/USDT")
	cache.Set(a, &market.OrderBook{Symbol: a})
	cache.Set(b, &market.OrderBook{Symbol: b})

	cache.Delete(a)
	if _, ok := cache.Get(a); ok {
		t.Error("deleted entry still present")
	}
	if _, ok := cache.Get(b); !ok {
		t.Error("unrelated entry evicted")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", cache.Len())
	}
}

func TestCacheAges(t *testing.T) {
	cache := NewCache()
	s := sym("BTC/USDT")
	cache.Set(s, &market.OrderBook{Symbol: s})

	ages := cache.Ages()
	if len(ages) != 1 {
		t.Fatalf("got %d ages, want 1", len(ages))
	}
	if ages[0].Symbol != s {
		t.Errorf("age symbol = %s, want %s", ages[0].Symbol, s)
	}
	if ages[0].Elapsed < 0 || ages[0].Elapsed > time.Minute {
		t.Errorf("implausible elapsed %s", ages[0].Elapsed)
	}
}
