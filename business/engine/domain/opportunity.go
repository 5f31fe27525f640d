// Package domain contains the engine's result types.
package domain

import (
	"github.com/shopspring/decimal"

	market "github.com/dpfaria/triarb/business/market/domain"
	routing "github.com/dpfaria/triarb/business/routing/domain"
)

// Opportunity is a cycle whose simulated round trip beat the operator
// threshold.
type Opportunity struct {
	Cycle     routing.Cycle
	ProfitPct decimal.Decimal
	Volume    decimal.Decimal // initial notional in the cycle's base currency
}

// ExecutedLeg records one completed leg of a live execution.
type ExecutedLeg struct {
	Symbol  market.Symbol
	Side    market.Side
	Amount  decimal.Decimal
	OrderID string
}

// ExecutionResult is the outcome of a full cycle execution.
type ExecutionResult struct {
	Cycle          routing.Cycle
	Legs           []ExecutedLeg
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal
	PnL            decimal.Decimal
}
