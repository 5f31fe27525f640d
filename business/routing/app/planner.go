// Package app implements the route graph: adjacency over the tradable
// markets and depth-limited enumeration of base-anchored cycles.
package app

import (
	"context"
	"math/rand/v2"

	marketapp "github.com/dpfaria/triarb/business/market/app"
	market "github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/business/routing/domain"
	"github.com/dpfaria/triarb/internal/config"
	"github.com/dpfaria/triarb/internal/logger"
)

// Planner enumerates trading cycles over the market catalog.
type Planner struct {
	catalog   *marketapp.Catalog
	blacklist marketapp.BlacklistView
	bases     []market.Currency
	logger    logger.LoggerInterface
	shuffle   bool
}

// NewPlanner creates a Planner anchored at the given base currencies.
func NewPlanner(catalog *marketapp.Catalog, bl marketapp.BlacklistView, baseCurrencies []string, log logger.LoggerInterface) *Planner {
	bases := make([]market.Currency, 0, len(baseCurrencies))
	for _, b := range baseCurrencies {
		bases = append(bases, market.NewCurrency(b))
	}
	return &Planner{
		catalog:   catalog,
		blacklist: bl,
		bases:     bases,
		logger:    log,
		shuffle:   true,
	}
}

// Bases returns the configured anchor currencies.
func (p *Planner) Bases() []market.Currency {
	return p.bases
}

// Build enumerates every realisable cycle of edge length in
// [MinRouteDepth, maxDepth]. The result order is shuffled so the scan does
// not always favour the same routes.
func (p *Planner) Build(ctx context.Context, maxDepth int) []domain.Cycle {
	if maxDepth < config.MinRouteDepth {
		maxDepth = config.MinRouteDepth
	}
	if maxDepth > config.MaxRouteDepth {
		maxDepth = config.MaxRouteDepth
	}

	adj := p.adjacency()

	var cycles []domain.Cycle
	seen := make(map[string]struct{})
	for _, base := range p.bases {
		if _, ok := adj[base]; !ok {
			continue
		}
		path := make([]market.Currency, 1, maxDepth+1)
		path[0] = base
		p.dfs(base, path, 0, maxDepth, adj, func(c domain.Cycle) {
			if !p.realisable(c) {
				return
			}
			if _, dup := seen[c.Key()]; dup {
				return
			}
			seen[c.Key()] = struct{}{}
			cycles = append(cycles, c)
		})
	}

	if p.shuffle {
		rand.Shuffle(len(cycles), func(i, j int) {
			cycles[i], cycles[j] = cycles[j], cycles[i]
		})
	}

	p.logger.Info(ctx, "route graph built",
		"markets", p.catalog.Len(),
		"max_depth", maxDepth,
		"cycles", len(cycles))
	return cycles
}

// adjacency builds the undirected currency graph, one edge per tradable,
// non-blacklisted symbol.
func (p *Planner) adjacency() map[market.Currency]map[market.Currency]struct{} {
	adj := make(map[market.Currency]map[market.Currency]struct{})
	link := func(a, b market.Currency) {
		if adj[a] == nil {
			adj[a] = make(map[market.Currency]struct{})
		}
		adj[a][b] = struct{}{}
	}
	for _, sym := range p.catalog.Symbols() {
		if p.blacklist != nil && p.blacklist.Contains(sym.String()) {
			continue
		}
		link(sym.Base, sym.Quote)
		link(sym.Quote, sym.Base)
	}
	return adj
}

// dfs walks the graph with the path as an explicit vector; depth counts
// edges taken so far.
func (p *Planner) dfs(
	base market.Currency,
	path []market.Currency,
	depth, maxDepth int,
	adj map[market.Currency]map[market.Currency]struct{},
	emit func(domain.Cycle),
) {
	current := path[len(path)-1]
	for next := range adj[current] {
		if next == base {
			if depth+1 >= config.MinRouteDepth {
				cycle := make(domain.Cycle, len(path)+1)
				copy(cycle, path)
				cycle[len(path)] = next
				emit(cycle)
			}
			continue
		}
		if depth+1 >= maxDepth {
			continue
		}
		if contains(path, next) {
			continue
		}
		p.dfs(base, append(path, next), depth+1, maxDepth, adj, emit)
	}
}

func contains(path []market.Currency, c market.Currency) bool {
	for _, p := range path {
		if p == c {
			return true
		}
	}
	return false
}

// realisable checks that every leg of the cycle resolves to exactly one
// listed, non-blacklisted market.
func (p *Planner) realisable(c domain.Cycle) bool {
	for _, leg := range c.Legs() {
		sym, _, ok := p.catalog.PairDetails(leg.From, leg.To)
		if !ok {
			return false
		}
		if p.blacklist != nil && p.blacklist.Contains(sym.String()) {
			return false
		}
	}
	return true
}

// RequiredSymbols projects the cycles onto the set of markets whose books
// must be streamed, excluding blacklisted symbols.
func (p *Planner) RequiredSymbols(cycles []domain.Cycle) map[market.Symbol]struct{} {
	required := make(map[market.Symbol]struct{})
	for _, c := range cycles {
		for _, leg := range c.Legs() {
			sym, _, ok := p.catalog.PairDetails(leg.From, leg.To)
			if !ok {
				continue
			}
			if p.blacklist != nil && p.blacklist.Contains(sym.String()) {
				continue
			}
			required[sym] = struct{}{}
		}
	}
	return required
}
