// Package app contains the live order-book cache and the per-symbol
// stream supervision.
package app

import (
	"sync"
	"time"

	market "github.com/dpfaria/triarb/business/market/domain"
)

// Cache maps symbols to their most recent order-book snapshot. Snapshots
// are immutable once stored; writers swap the pointer so readers always
// see a complete asks/bids/timestamp triple or nothing at all.
type Cache struct {
	mu      sync.RWMutex
	books   map[market.Symbol]*market.OrderBook
	updated map[market.Symbol]time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		books:   make(map[market.Symbol]*market.OrderBook),
		updated: make(map[market.Symbol]time.Time),
	}
}

// Set stores the latest snapshot for a symbol (last writer wins).
func (c *Cache) Set(sym market.Symbol, book *market.OrderBook) {
	c.mu.Lock()
	c.books[sym] = book
	c.updated[sym] = time.Now()
	c.mu.Unlock()
}

// Get returns the latest snapshot for a symbol, if any.
func (c *Cache) Get(sym market.Symbol) (*market.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	book, ok := c.books[sym]
	return book, ok
}

// Delete evicts a symbol's snapshot.
func (c *Cache) Delete(sym market.Symbol) {
	c.mu.Lock()
	delete(c.books, sym)
	delete(c.updated, sym)
	c.mu.Unlock()
}

// Clear evicts everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.books = make(map[market.Symbol]*market.OrderBook)
	c.updated = make(map[market.Symbol]time.Time)
	c.mu.Unlock()
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}

// Age is a staleness report entry for the operator console.
type Age struct {
	Symbol  market.Symbol
	Elapsed time.Duration
}

// Ages returns per-symbol time since the last snapshot was received.
func (c *Cache) Ages() []Age {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	out := make([]Age, 0, len(c.updated))
	for sym, at := range c.updated {
		out = append(out, Age{Symbol: sym, Elapsed: now.Sub(at)})
	}
	return out
}
