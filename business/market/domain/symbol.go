// Package domain contains the core market types: currencies, symbols,
// limits and order books.
package domain

import (
	"fmt"
	"strings"
)

// Currency is an exchange asset code. Comparison is exact string equality
// after upper-casing, which NewCurrency enforces.
type Currency string

// NewCurrency normalises an asset code.
func NewCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

func (c Currency) String() string { return string(c) }

// Symbol is an ordered (base, quote) pair backing one tradable market.
type Symbol struct {
	Base  Currency
	Quote Currency
}

// NewSymbol builds a Symbol from raw asset codes.
func NewSymbol(base, quote string) Symbol {
	return Symbol{Base: NewCurrency(base), Quote: NewCurrency(quote)}
}

// ParseSymbol parses the canonical "BASE/QUOTE" form.
func ParseSymbol(s string) (Symbol, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Symbol{}, fmt.Errorf("malformed symbol %q", s)
	}
	sym := NewSymbol(parts[0], parts[1])
	if sym.Base == sym.Quote {
		return Symbol{}, fmt.Errorf("symbol %q has identical base and quote", s)
	}
	return sym, nil
}

// String renders the canonical "BASE/QUOTE" form.
func (s Symbol) String() string {
	return string(s.Base) + "/" + string(s.Quote)
}

// IsZero reports whether the symbol is the zero value.
func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}

// Side is the taker side of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)
