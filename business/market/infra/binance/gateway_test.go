package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
)

func testGateway(baseURL string) *Gateway {
	return New(Config{
		RESTURL:   baseURL,
		APIKey:    "test-key",
		APISecret: "test-secret",
	}, logger.New(io.Discard, logger.LevelError, "test"))
}

const exchangeInfoBody = `{
  "symbols": [
    {
      "symbol": "BTCUSDT",
      "status": "TRADING",
      "baseAsset": "BTC",
      "quoteAsset": "USDT",
      "filters": [
        {"filterType": "LOT_SIZE", "minQty": "0.00010000", "stepSize": "0.00010000"},
        {"filterType": "PRICE_FILTER", "tickSize": "0.01000000"},
        {"filterType": "NOTIONAL", "minNotional": "5.00000000"}
      ]
    },
    {
      "symbol": "LUNAUSDT",
      "status": "BREAK",
      "baseAsset": "LUNA",
      "quoteAsset": "USDT",
      "filters": []
    }
  ]
}`

func TestLoadMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, exchangeInfoBody)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	markets, err := g.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}

	btc := domain.NewSymbol("BTC", "USDT")
	m, ok := markets[btc]
	if !ok {
		t.Fatalf("BTC/USDT missing from %d markets", len(markets))
	}
	if !m.Active {
		t.Error("TRADING market must be active")
	}
	if m.Limits.MinAmount == nil || !m.Limits.MinAmount.Equal(decimal.RequireFromString("0.0001")) {
		t.Errorf("MinAmount = %v", m.Limits.MinAmount)
	}
	if m.Limits.AmountPrecision == nil || *m.Limits.AmountPrecision != 4 {
		t.Errorf("AmountPrecision = %v, want 4", m.Limits.AmountPrecision)
	}
	if m.Limits.PricePrecision == nil || *m.Limits.PricePrecision != 2 {
		t.Errorf("PricePrecision = %v, want 2", m.Limits.PricePrecision)
	}
	if m.Limits.MinCost == nil || !m.Limits.MinCost.Equal(decimal.NewFromInt(5)) {
		t.Errorf("MinCost = %v", m.Limits.MinCost)
	}

	luna, ok := markets[domain.NewSymbol("LUNA", "USDT")]
	if !ok || luna.Active {
		t.Error("halted market must be returned inactive")
	}
}

func TestStepPrecision(t *testing.T) {
	tests := []struct {
		step string
		want int32
		ok   bool
	}{
		{step: "1.00000000", want: 0, ok: true},
		{step: "0.10000000", want: 1, ok: true},
		{step: "0.00100000", want: 3, ok: true},
		{step: "0.00000001", want: 8, ok: true},
		{step: "10.00000000", want: 0, ok: true},
		{step: "0", ok: false},
		{step: "", ok: false},
		{step: "abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			got, ok := stepPrecision(tt.step)
			if ok != tt.ok || got != tt.want {
				t.Errorf("stepPrecision(%q) = (%d, %v), want (%d, %v)",
					tt.step, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAmountToPrecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, exchangeInfoBody)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	if _, err := g.LoadMarkets(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := g.AmountToPrecision(domain.NewSymbol("BTC", "USDT"), decimal.RequireFromString("0.123456789"))
	if err != nil {
		t.Fatalf("AmountToPrecision: %v", err)
	}
	// Truncated, never rounded up.
	if got != "0.1234" {
		t.Errorf("AmountToPrecision = %q, want 0.1234", got)
	}

	_, err = g.AmountToPrecision(domain.NewSymbol("XXX", "YYY"), decimal.NewFromInt(1))
	if !apperror.HasCode(err, apperror.CodeSymbolNotListed) {
		t.Errorf("unknown symbol error = %v", err)
	}
}

func TestFetchBalance(t *testing.T) {
	var gotQuery url.Values
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery, _ = url.ParseQuery(r.URL.RawQuery)
		gotKey = r.Header.Get("X-MBX-APIKEY")
		fmt.Fprint(w, `{"balances":[
			{"asset":"USDT","free":"120.5","locked":"10"},
			{"asset":"BTC","free":"0.25","locked":"0.00000000"}
		]}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	balances, err := g.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}

	usdt := balances[domain.NewCurrency("USDT")]
	if !usdt.Free.Equal(decimal.RequireFromString("120.5")) ||
		!usdt.Total.Equal(decimal.RequireFromString("130.5")) {
		t.Errorf("USDT balance = %+v", usdt)
	}
	if !balances[domain.NewCurrency("BTC")].Free.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("BTC balance = %+v", balances[domain.NewCurrency("BTC")])
	}

	if gotKey != "test-key" {
		t.Errorf("X-MBX-APIKEY = %q", gotKey)
	}
	for _, param := range []string{"timestamp", "recvWindow", "signature"} {
		if gotQuery.Get(param) == "" {
			t.Errorf("signed request missing %q", param)
		}
	}
}

func TestSignedRequestSignature(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"balances":[]}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	if _, err := g.FetchBalance(context.Background()); err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}

	// The signature covers everything before it and sits last in the query.
	const marker = "&signature="
	idx := strings.LastIndex(rawQuery, marker)
	if idx < 0 {
		t.Fatalf("no signature in query %q", rawQuery)
	}
	payload := rawQuery[:idx]
	gotSig := rawQuery[idx+len(marker):]

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(payload))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Errorf("signature = %s, want %s over %q", gotSig, want, payload)
	}
}

func TestFetchOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("limit") != "100" {
			t.Errorf("query = %v", q)
		}
		fmt.Fprint(w, `{"lastUpdateId":1,
			"bids":[["50000.00","0.5"],["49999.00","1.0"]],
			"asks":[["50001.00","0.3"]]}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	book, err := g.FetchOrderBook(context.Background(), domain.NewSymbol("BTC", "USDT"), 100)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}

	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("levels = %d bids, %d asks", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.NewFromInt(50000)) ||
		!book.Bids[0].Size.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("top bid = %+v", book.Bids[0])
	}
	if book.Timestamp == 0 {
		t.Error("snapshot timestamp must be set")
	}
}

func TestFetchOrderBookRejectsMalformedLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lastUpdateId":1,"bids":[["oops","0.5"]],"asks":[]}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	_, err := g.FetchOrderBook(context.Background(), domain.NewSymbol("BTC", "USDT"), 100)
	if !apperror.HasCode(err, apperror.CodeInvalidOrderbook) {
		t.Errorf("error = %v, want CodeInvalidOrderbook", err)
	}
}

func TestCreateMarketBuyOrder(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/order" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":12345,"status":"FILLED",
			"side":"BUY","executedQty":"0.0010","origQty":"0.0010"}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	order, err := g.CreateMarketBuyOrder(context.Background(),
		domain.NewSymbol("BTC", "USDT"), decimal.RequireFromString("0.001"))
	if err != nil {
		t.Fatalf("CreateMarketBuyOrder: %v", err)
	}

	if gotForm.Get("symbol") != "BTCUSDT" || gotForm.Get("side") != "BUY" ||
		gotForm.Get("type") != "MARKET" || gotForm.Get("quantity") != "0.001" {
		t.Errorf("order form = %v", gotForm)
	}
	if gotForm.Get("signature") == "" {
		t.Error("order request must be signed")
	}

	if order.ID != "12345" || order.Side != domain.SideBuy {
		t.Errorf("order = %+v", order)
	}
	if order.Status != domain.OrderStatusClosed {
		t.Errorf("Status = %s, want closed", order.Status)
	}
	if !order.Amount.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("Amount = %s", order.Amount)
	}
}

func TestToOrderStatus(t *testing.T) {
	tests := []struct {
		exchange string
		want     domain.OrderStatus
	}{
		{exchange: "NEW", want: domain.OrderStatusOpen},
		{exchange: "PARTIALLY_FILLED", want: domain.OrderStatusOpen},
		{exchange: "FILLED", want: domain.OrderStatusClosed},
		{exchange: "CANCELED", want: domain.OrderStatusCanceled},
		{exchange: "REJECTED", want: domain.OrderStatusRejected},
		{exchange: "EXPIRED", want: domain.OrderStatusExpired},
		{exchange: "SOMETHING_ELSE", want: domain.OrderStatusOpen},
	}
	for _, tt := range tests {
		if got := toOrderStatus(tt.exchange); got != tt.want {
			t.Errorf("toOrderStatus(%s) = %s, want %s", tt.exchange, got, tt.want)
		}
	}
}

func TestRateLimitedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	_, err := g.FetchBalance(context.Background())
	if !apperror.HasCode(err, apperror.CodeGatewayRateLimited) {
		t.Errorf("error = %v, want CodeGatewayRateLimited", err)
	}
}

func TestAPIErrorIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	g := testGateway(srv.URL)
	_, err := g.FetchTicker(context.Background(), domain.NewSymbol("XXX", "YYY"))
	if !apperror.HasCode(err, apperror.CodeGatewayAPIError) {
		t.Fatalf("error = %v, want CodeGatewayAPIError", err)
	}
	if !strings.Contains(err.Error(), "Invalid symbol") {
		t.Errorf("error %q should carry the exchange message", err.Error())
	}
}
