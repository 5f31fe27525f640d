// Package domain contains the route-graph types.
package domain

import (
	"strings"

	market "github.com/dpfaria/triarb/business/market/domain"
)

// Cycle is a closed walk over currencies: it starts and ends at the same
// base currency and every intermediate currency is distinct.
type Cycle []market.Currency

// Base returns the anchor currency of the cycle.
func (c Cycle) Base() market.Currency {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Leg is one adjacency of a cycle: value moves from From into To.
type Leg struct {
	From market.Currency
	To   market.Currency
}

// Legs returns the adjacent currency pairs of the cycle in order.
func (c Cycle) Legs() []Leg {
	if len(c) < 2 {
		return nil
	}
	legs := make([]Leg, 0, len(c)-1)
	for i := 0; i+1 < len(c); i++ {
		legs = append(legs, Leg{From: c[i], To: c[i+1]})
	}
	return legs
}

// Equal reports exact sequence equality. Rotations are different cycles.
func (c Cycle) Equal(other Cycle) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the cycle as "USDT -> BTC -> ETH -> USDT".
func (c Cycle) String() string {
	parts := make([]string, len(c))
	for i, cur := range c {
		parts[i] = string(cur)
	}
	return strings.Join(parts, " -> ")
}

// Key returns a canonical map key for sequence-level dedup.
func (c Cycle) Key() string {
	parts := make([]string, len(c))
	for i, cur := range c {
		parts[i] = string(cur)
	}
	return strings.Join(parts, "|")
}
