// Package binance implements the exchange gateway against the Binance
// spot REST and WebSocket APIs.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/circuitbreaker"
	"github.com/dpfaria/triarb/internal/logger"
	"github.com/dpfaria/triarb/internal/ratelimit"
)

const tracerName = "binance"

// Request weights per the Binance spot API documentation.
const (
	weightDefault      = 2
	weightExchangeInfo = 20
	weightAccount      = 20
	weightDepth        = 5
)

// Config holds the gateway endpoints and credentials.
type Config struct {
	RESTURL        string
	WebSocketURL   string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	RequestsPerMin int
}

// Gateway is the Binance implementation of the exchange port.
type Gateway struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[[]byte]
	tracer  trace.Tracer
	logger  logger.LoggerInterface

	mu      sync.RWMutex
	markets map[domain.Symbol]domain.Market
}

// New creates a Gateway. Credentials may be empty for read-only use.
func New(cfg Config, log logger.LoggerInterface) *Gateway {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.RequestsPerMin == 0 {
		cfg.RequestsPerMin = 1100
	}

	g := &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: ratelimit.New(cfg.RequestsPerMin),
		tracer:  otel.Tracer(tracerName),
		logger:  log,
		markets: make(map[domain.Symbol]domain.Market),
	}

	cbCfg := circuitbreaker.DefaultConfig("binance-rest")
	g.breaker = circuitbreaker.New[[]byte](cbCfg)
	return g
}

// symbolID maps a domain symbol onto the exchange identifier.
func symbolID(sym domain.Symbol) string {
	return string(sym.Base) + string(sym.Quote)
}

// LoadMarkets fetches exchangeInfo and returns every active spot market.
// The result is also cached for AmountToPrecision and limit checks.
func (g *Gateway) LoadMarkets(ctx context.Context) (map[domain.Symbol]domain.Market, error) {
	ctx, span := g.tracer.Start(ctx, "binance.load_markets")
	defer span.End()

	body, err := g.get(ctx, "/api/v3/exchangeInfo", nil, weightExchangeInfo, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchangeInfo failed")
		return nil, err
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("decode exchangeInfo"))
	}

	markets := make(map[domain.Symbol]domain.Market, len(info.Symbols))
	for _, si := range info.Symbols {
		sym := domain.Symbol{
			Base:  domain.NewCurrency(si.BaseAsset),
			Quote: domain.NewCurrency(si.QuoteAsset),
		}
		markets[sym] = domain.Market{
			Symbol: sym,
			Active: si.Status == "TRADING",
			Limits: parseLimits(si.Filters),
		}
	}

	g.mu.Lock()
	g.markets = markets
	g.mu.Unlock()

	span.SetAttributes(attribute.Int("markets", len(markets)))
	g.logger.Info(ctx, "markets loaded", "count", len(markets))
	return markets, nil
}

// parseLimits extracts the trading constraints from the symbol filters.
func parseLimits(filters []symbolFilter) domain.MarketLimits {
	var limits domain.MarketLimits
	for _, f := range filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if d, err := decimal.NewFromString(f.MinQty); err == nil && d.Sign() > 0 {
				limits.MinAmount = &d
			}
			if p, ok := stepPrecision(f.StepSize); ok {
				limits.AmountPrecision = &p
			}
		case "PRICE_FILTER":
			if p, ok := stepPrecision(f.TickSize); ok {
				limits.PricePrecision = &p
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			if d, err := decimal.NewFromString(f.MinNotional); err == nil && d.Sign() > 0 {
				limits.MinCost = &d
			}
		}
	}
	return limits
}

// stepPrecision converts a step size like "0.00100000" into the number
// of meaningful decimal places.
func stepPrecision(step string) (int32, bool) {
	d, err := decimal.NewFromString(step)
	if err != nil || d.Sign() <= 0 {
		return 0, false
	}
	one := decimal.NewFromInt(1)
	var p int32
	for d.LessThan(one) && p < 12 {
		d = d.Shift(1)
		p++
	}
	return p, true
}

// FetchBalance returns per-currency free and total balances.
func (g *Gateway) FetchBalance(ctx context.Context) (map[domain.Currency]domain.Balance, error) {
	ctx, span := g.tracer.Start(ctx, "binance.fetch_balance")
	defer span.End()

	body, err := g.get(ctx, "/api/v3/account", url.Values{"omitZeroBalances": {"true"}}, weightAccount, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var account accountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("decode account"))
	}

	balances := make(map[domain.Currency]domain.Balance, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		balances[domain.NewCurrency(b.Asset)] = domain.Balance{
			Free:  free,
			Total: free.Add(locked),
		}
	}
	return balances, nil
}

// FetchTicker returns the current top of book for a symbol.
func (g *Gateway) FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error) {
	ctx, span := g.tracer.Start(ctx, "binance.fetch_ticker",
		trace.WithAttributes(attribute.String("symbol", sym.String())))
	defer span.End()

	params := url.Values{"symbol": {symbolID(sym)}}
	body, err := g.get(ctx, "/api/v3/ticker/bookTicker", params, weightDefault, false)
	if err != nil {
		span.RecordError(err)
		return domain.Ticker{}, err
	}

	var bt bookTickerResponse
	if err := json.Unmarshal(body, &bt); err != nil {
		return domain.Ticker{}, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("decode bookTicker for "+sym.String()))
	}

	bid, err := decimal.NewFromString(bt.BidPrice)
	if err != nil {
		return domain.Ticker{}, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("parse bid for "+sym.String()))
	}
	ask, err := decimal.NewFromString(bt.AskPrice)
	if err != nil {
		return domain.Ticker{}, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("parse ask for "+sym.String()))
	}
	return domain.Ticker{Bid: bid, Ask: ask}, nil
}

// FetchOrderBook returns a one-shot depth snapshot over REST.
func (g *Gateway) FetchOrderBook(ctx context.Context, sym domain.Symbol, limit int) (*domain.OrderBook, error) {
	ctx, span := g.tracer.Start(ctx, "binance.fetch_order_book",
		trace.WithAttributes(
			attribute.String("symbol", sym.String()),
			attribute.Int("limit", limit)))
	defer span.End()

	params := url.Values{
		"symbol": {symbolID(sym)},
		"limit":  {fmt.Sprint(limit)},
	}
	body, err := g.get(ctx, "/api/v3/depth", params, weightDepth, false)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Wrap(err, apperror.CodeOrderbookFetchFailed, "depth for "+sym.String())
	}

	var depth depthResponse
	if err := json.Unmarshal(body, &depth); err != nil {
		return nil, apperror.New(apperror.CodeOrderbookFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode depth for "+sym.String()))
	}

	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook,
			apperror.WithCause(err),
			apperror.WithContext("asks for "+sym.String()))
	}
	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook,
			apperror.WithCause(err),
			apperror.WithContext("bids for "+sym.String()))
	}

	return &domain.OrderBook{
		Symbol:    sym,
		Asks:      asks,
		Bids:      bids,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// parseLevels converts [["price","qty"], ...] into book levels.
func parseLevels(raw [][]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level with %d fields", len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", pair[1], err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

// CreateMarketBuyOrder places a market buy for the given base amount.
func (g *Gateway) CreateMarketBuyOrder(ctx context.Context, sym domain.Symbol, amount decimal.Decimal) (domain.Order, error) {
	return g.createMarketOrder(ctx, sym, domain.SideBuy, amount)
}

// CreateMarketSellOrder places a market sell for the given base amount.
func (g *Gateway) CreateMarketSellOrder(ctx context.Context, sym domain.Symbol, amount decimal.Decimal) (domain.Order, error) {
	return g.createMarketOrder(ctx, sym, domain.SideSell, amount)
}

func (g *Gateway) createMarketOrder(ctx context.Context, sym domain.Symbol, side domain.Side, amount decimal.Decimal) (domain.Order, error) {
	ctx, span := g.tracer.Start(ctx, "binance.create_order",
		trace.WithAttributes(
			attribute.String("symbol", sym.String()),
			attribute.String("side", string(side)),
			attribute.String("amount", amount.String())))
	defer span.End()

	binSide := "BUY"
	if side == domain.SideSell {
		binSide = "SELL"
	}
	params := url.Values{
		"symbol":   {symbolID(sym)},
		"side":     {binSide},
		"type":     {"MARKET"},
		"quantity": {amount.String()},
	}

	body, err := g.request(ctx, http.MethodPost, "/api/v3/order", params, weightDefault, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order rejected")
		return domain.Order{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("decode order response for "+sym.String()))
	}

	order := toOrder(resp, sym, side)
	g.logger.Info(ctx, "order placed",
		"symbol", sym.String(), "side", side, "amount", amount.String(),
		"order_id", order.ID, "status", order.Status)
	return order, nil
}

// FetchOrder returns the current state of an order.
func (g *Gateway) FetchOrder(ctx context.Context, id string, sym domain.Symbol) (domain.Order, error) {
	ctx, span := g.tracer.Start(ctx, "binance.fetch_order",
		trace.WithAttributes(
			attribute.String("symbol", sym.String()),
			attribute.String("order_id", id)))
	defer span.End()

	params := url.Values{
		"symbol":  {symbolID(sym)},
		"orderId": {id},
	}
	body, err := g.get(ctx, "/api/v3/order", params, weightDefault, true)
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("decode order state for "+sym.String()))
	}

	side := domain.SideBuy
	if resp.Side == "SELL" {
		side = domain.SideSell
	}
	return toOrder(resp, sym, side), nil
}

func toOrder(resp orderResponse, sym domain.Symbol, side domain.Side) domain.Order {
	amount, err := decimal.NewFromString(resp.ExecutedQty)
	if err != nil || amount.Sign() == 0 {
		amount, _ = decimal.NewFromString(resp.OrigQty)
	}
	return domain.Order{
		ID:     fmt.Sprint(resp.OrderID),
		Symbol: sym,
		Side:   side,
		Amount: amount,
		Status: toOrderStatus(resp.Status),
	}
}

func toOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED", "PENDING_NEW":
		return domain.OrderStatusOpen
	case "FILLED":
		return domain.OrderStatusClosed
	case "CANCELED", "PENDING_CANCEL":
		return domain.OrderStatusCanceled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusOpen
	}
}

// AmountToPrecision truncates a base amount to the market's declared
// step precision. Truncation, not rounding, so the result never exceeds
// the available balance.
func (g *Gateway) AmountToPrecision(sym domain.Symbol, amount decimal.Decimal) (string, error) {
	g.mu.RLock()
	m, ok := g.markets[sym]
	g.mu.RUnlock()
	if !ok {
		return "", apperror.New(apperror.CodeSymbolNotListed,
			apperror.WithContext(sym.String()))
	}
	if m.Limits.AmountPrecision == nil {
		return amount.String(), nil
	}
	return amount.Truncate(*m.Limits.AmountPrecision).String(), nil
}

// Close releases the HTTP connection pool.
func (g *Gateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// get issues a GET request, signing it when the endpoint requires it.
func (g *Gateway) get(ctx context.Context, path string, params url.Values, weight int, signed bool) ([]byte, error) {
	return g.request(ctx, http.MethodGet, path, params, weight, signed)
}

// request applies the rate limit, the circuit breaker and HMAC signing,
// then performs one REST call.
func (g *Gateway) request(ctx context.Context, method, path string, params url.Values, weight int, signed bool) ([]byte, error) {
	if err := g.limiter.WaitN(ctx, weight); err != nil {
		return nil, apperror.New(apperror.CodeServiceTimeout,
			apperror.WithCause(err),
			apperror.WithContext("rate limit wait for "+path))
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		return g.doRequest(ctx, method, path, params, signed)
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		// The breaker's own sentinel errors arrive here.
		return nil, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(path))
	}
	return body, nil
}

func (g *Gateway) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", fmt.Sprint(time.Now().UnixMilli()))
		params.Set("recvWindow", "5000")
	}
	encoded := params.Encode()
	if signed {
		// The signature covers the exact payload and is appended last.
		encoded += "&signature=" + g.sign(encoded)
	}

	endpoint := g.cfg.RESTURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("build request for "+path))
	}
	if g.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext(method+" "+path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithCause(err),
			apperror.WithContext("read response for "+path))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		return nil, apperror.New(apperror.CodeGatewayRateLimited,
			apperror.WithContext(fmt.Sprintf("%s returned %d", path, resp.StatusCode)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		detail := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			detail = fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)
		}
		return nil, apperror.New(apperror.CodeGatewayAPIError,
			apperror.WithContext(fmt.Sprintf("%s returned %d (%s)", path, resp.StatusCode, detail)))
	}

	return body, nil
}

// sign computes the HMAC-SHA256 of the query string with the API secret.
func (g *Gateway) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
