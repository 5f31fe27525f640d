package domain

import (
	"github.com/shopspring/decimal"
)

func init() {
	// All cycle math runs through decimal division; the package default of
	// 16 digits is below the precision the depth walk needs.
	if decimal.DivisionPrecision < 28 {
		decimal.DivisionPrecision = 28
	}
}

// MarketLimits carries the exchange's per-market constraints. Nil fields
// mean the exchange declared no bound for that dimension.
type MarketLimits struct {
	MinAmount       *decimal.Decimal // minimum base amount
	MinCost         *decimal.Decimal // minimum notional in quote
	AmountPrecision *int32           // decimal places for base amounts
	PricePrecision  *int32           // decimal places for prices
}

// Market is one tradable spot market as reported by the gateway.
type Market struct {
	Symbol Symbol
	Active bool
	Limits MarketLimits
}

// Balance is the free/total holding of one currency.
type Balance struct {
	Free  decimal.Decimal
	Total decimal.Decimal
}

// Ticker is the current top of book for a symbol.
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// OrderStatus is the gateway's view of an order's lifecycle.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusExpired  OrderStatus = "expired"
)

// Terminal reports whether the status will not change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosed, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order is a placed order's identity and state.
type Order struct {
	ID     string
	Symbol Symbol
	Side   Side
	Amount decimal.Decimal
	Status OrderStatus
}
