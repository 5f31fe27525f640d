// Package app contains application services and port definitions for the
// market context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dpfaria/triarb/business/market/domain"
)

// BookStream is one live order-book subscription. Recv blocks until the
// next merged snapshot arrives or the stream fails. Closing a stream only
// tears down its own subscription, never the gateway.
type BookStream interface {
	Recv(ctx context.Context) (*domain.OrderBook, error)
	Close() error
}

// ExchangeGateway is the engine's view of the exchange SDK. Implementations
// deliver already-merged order-book snapshots; diff reconstruction is their
// problem, not the engine's.
type ExchangeGateway interface {
	LoadMarkets(ctx context.Context) (map[domain.Symbol]domain.Market, error)
	FetchBalance(ctx context.Context) (map[domain.Currency]domain.Balance, error)
	FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error)
	FetchOrderBook(ctx context.Context, sym domain.Symbol, limit int) (*domain.OrderBook, error)
	WatchOrderBook(ctx context.Context, sym domain.Symbol, limit int) (BookStream, error)
	CreateMarketBuyOrder(ctx context.Context, sym domain.Symbol, amount decimal.Decimal) (domain.Order, error)
	CreateMarketSellOrder(ctx context.Context, sym domain.Symbol, amount decimal.Decimal) (domain.Order, error)
	FetchOrder(ctx context.Context, id string, sym domain.Symbol) (domain.Order, error)

	// AmountToPrecision canonically rounds a base amount to the market's
	// declared precision. The returned string is what the exchange accepts.
	AmountToPrecision(sym domain.Symbol, amount decimal.Decimal) (string, error)

	Close() error
}

// BlacklistView is the read side of the persistent symbol blacklist.
type BlacklistView interface {
	Contains(symbol string) bool
}
