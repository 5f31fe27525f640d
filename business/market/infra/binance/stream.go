package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpfaria/triarb/business/market/app"
	"github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/wsconn"
)

// Ensure interface compliance
var _ app.ExchangeGateway = (*Gateway)(nil)

// Partial depth stream levels supported by the exchange.
var depthLevels = []int{5, 10, 20}

// WatchOrderBook opens a dedicated partial-depth stream for one symbol.
// Every frame is a full merged snapshot, so no diff bookkeeping is
// needed. Closing the stream tears down only this connection.
func (g *Gateway) WatchOrderBook(ctx context.Context, sym domain.Symbol, limit int) (app.BookStream, error) {
	ctx, span := g.tracer.Start(ctx, "binance.watch_order_book",
		trace.WithAttributes(
			attribute.String("symbol", sym.String()),
			attribute.Int("limit", limit)))
	defer span.End()

	levels := depthLevels[0]
	for _, l := range depthLevels {
		if limit >= l {
			levels = l
		}
	}

	streamURL := fmt.Sprintf("%s/ws/%s@depth%d@100ms",
		g.cfg.WebSocketURL, strings.ToLower(symbolID(sym)), levels)

	conn := wsconn.New(wsconn.DefaultConfig(streamURL))
	if err := conn.Connect(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	g.logger.Info(ctx, "book stream opened",
		"symbol", sym.String(), "levels", levels)
	return &bookStream{symbol: sym, conn: conn}, nil
}

type bookStream struct {
	symbol domain.Symbol
	conn   *wsconn.Client
}

// Recv blocks until the next snapshot frame arrives.
func (s *bookStream) Recv(ctx context.Context) (*domain.OrderBook, error) {
	data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	var event partialDepthEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook,
			apperror.WithCause(err),
			apperror.WithContext("decode depth frame for "+s.symbol.String()))
	}

	asks, err := parseLevels(event.Asks)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook,
			apperror.WithCause(err),
			apperror.WithContext("asks for "+s.symbol.String()))
	}
	bids, err := parseLevels(event.Bids)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook,
			apperror.WithCause(err),
			apperror.WithContext("bids for "+s.symbol.String()))
	}

	return &domain.OrderBook{
		Symbol:    s.symbol,
		Asks:      asks,
		Bids:      bids,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Close closes the underlying connection; a blocked Recv returns with an
// error.
func (s *bookStream) Close() error {
	return s.conn.Close()
}
