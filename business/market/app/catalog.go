package app

import (
	"context"
	"sync"

	"github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
)

// CatalogConfig holds the static filtering sets applied on load.
type CatalogConfig struct {
	FiatCurrencies    []string
	CurrencyBlacklist []string
}

// Catalog is the canonical view of tradable symbols and their limits.
// It is loaded once at startup and reloaded on supervisor restart; reads
// after Load are lock-free on the snapshot maps.
type Catalog struct {
	gateway   ExchangeGateway
	blacklist BlacklistView
	logger    logger.LoggerInterface

	fiat         map[domain.Currency]struct{}
	blockedCoins map[domain.Currency]struct{}

	mu      sync.RWMutex
	markets map[domain.Symbol]domain.Market
}

// NewCatalog creates an empty catalog; call Load before use.
func NewCatalog(gw ExchangeGateway, bl BlacklistView, cfg CatalogConfig, log logger.LoggerInterface) *Catalog {
	fiat := make(map[domain.Currency]struct{}, len(cfg.FiatCurrencies))
	for _, c := range cfg.FiatCurrencies {
		fiat[domain.NewCurrency(c)] = struct{}{}
	}
	blocked := make(map[domain.Currency]struct{}, len(cfg.CurrencyBlacklist))
	for _, c := range cfg.CurrencyBlacklist {
		blocked[domain.NewCurrency(c)] = struct{}{}
	}
	return &Catalog{
		gateway:      gw,
		blacklist:    bl,
		logger:       log,
		fiat:         fiat,
		blockedCoins: blocked,
		markets:      make(map[domain.Symbol]domain.Market),
	}
}

// Load fetches the exchange's spot markets and applies the static filters.
// Failure is MARKETS_UNAVAILABLE; the supervisor treats it as fatal-with-retry.
func (c *Catalog) Load(ctx context.Context) error {
	raw, err := c.gateway.LoadMarkets(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeMarketsUnavailable, "load markets")
	}

	kept := make(map[domain.Symbol]domain.Market, len(raw))
	for sym, m := range raw {
		if !m.Active {
			continue
		}
		if c.isFiltered(sym) {
			continue
		}
		kept[sym] = m
	}

	c.mu.Lock()
	c.markets = kept
	c.mu.Unlock()

	c.logger.Info(ctx, "market catalog loaded", "total", len(raw), "tradable", len(kept))
	return nil
}

func (c *Catalog) isFiltered(sym domain.Symbol) bool {
	if _, ok := c.fiat[sym.Base]; ok {
		return true
	}
	if _, ok := c.fiat[sym.Quote]; ok {
		return true
	}
	if _, ok := c.blockedCoins[sym.Base]; ok {
		return true
	}
	if _, ok := c.blockedCoins[sym.Quote]; ok {
		return true
	}
	if c.blacklist != nil && c.blacklist.Contains(sym.String()) {
		return true
	}
	return false
}

// Lookup returns the market for a symbol.
func (c *Catalog) Lookup(sym domain.Symbol) (domain.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[sym]
	return m, ok
}

// Has reports whether the symbol is tradable.
func (c *Catalog) Has(sym domain.Symbol) bool {
	_, ok := c.Lookup(sym)
	return ok
}

// Symbols returns all tradable symbols.
func (c *Catalog) Symbols() []domain.Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Symbol, 0, len(c.markets))
	for sym := range c.markets {
		out = append(out, sym)
	}
	return out
}

// Len returns the number of tradable markets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markets)
}

// PairDetails resolves the market and taker side for moving value from one
// currency into another. A buy on TO/FROM spends from-currency; a sell on
// FROM/TO spends from-currency. Exactly one orientation may be listed:
// zero or two listings make the pair unresolvable and the caller discards
// the cycle.
func (c *Catalog) PairDetails(from, to domain.Currency) (domain.Symbol, domain.Side, bool) {
	buySym := domain.Symbol{Base: to, Quote: from}
	sellSym := domain.Symbol{Base: from, Quote: to}

	buyOK := c.Has(buySym)
	sellOK := c.Has(sellSym)

	switch {
	case buyOK && !sellOK:
		return buySym, domain.SideBuy, true
	case sellOK && !buyOK:
		return sellSym, domain.SideSell, true
	default:
		return domain.Symbol{}, "", false
	}
}
