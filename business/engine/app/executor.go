package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dpfaria/triarb/business/engine/domain"
	marketapp "github.com/dpfaria/triarb/business/market/app"
	market "github.com/dpfaria/triarb/business/market/domain"
	routing "github.com/dpfaria/triarb/business/routing/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
)

// ExecutorConfig tunes the live execution path.
type ExecutorConfig struct {
	SafetyMargin      decimal.Decimal
	AbsoluteMinimum   decimal.Decimal
	OrderPollInterval time.Duration
	OrderFillTimeout  time.Duration
}

// Executor runs a winning cycle leg by leg against the live gateway. A
// failure mid-cycle blacklists the offending pair and unwinds the
// stranded intermediate balance back to the cycle's base currency. Only
// one execution is ever in flight; the engine loop awaits completion.
type Executor struct {
	gateway   marketapp.ExchangeGateway
	catalog   *marketapp.Catalog
	blacklist BlacklistStore
	notifier  Notifier
	logger    logger.LoggerInterface
	cfg       ExecutorConfig
}

// NewExecutor wires an Executor.
func NewExecutor(
	gw marketapp.ExchangeGateway,
	catalog *marketapp.Catalog,
	bl BlacklistStore,
	notifier Notifier,
	cfg ExecutorConfig,
	log logger.LoggerInterface,
) *Executor {
	return &Executor{
		gateway:   gw,
		catalog:   catalog,
		blacklist: bl,
		notifier:  notifier,
		logger:    log,
		cfg:       cfg,
	}
}

// Execute runs the cycle with the given notional in the base currency.
// The returned result is non-nil only on full success.
func (e *Executor) Execute(ctx context.Context, cycle routing.Cycle, volume decimal.Decimal) (*domain.ExecutionResult, error) {
	base := cycle.Base()

	balances, err := e.gateway.FetchBalance(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGatewayAPIError, "fetch balance before execution")
	}
	initial := balances[base].Free

	usable := initial.Mul(e.cfg.SafetyMargin)
	if usable.LessThan(e.cfg.AbsoluteMinimum) {
		return nil, apperror.New(apperror.CodeInsufficientFunds,
			apperror.WithContext(fmt.Sprintf("free %s %s below minimum", initial, base)))
	}

	current := volume
	if current.GreaterThan(usable) {
		current = usable
	}

	result := &domain.ExecutionResult{
		Cycle:          cycle,
		InitialBalance: initial,
	}

	// Destination currencies of completed legs; the top entry is what the
	// emergency unwind has to rescue.
	var stranded []market.Currency

	legs := cycle.Legs()
	for i, leg := range legs {
		next, executed, legErr := e.executeLeg(ctx, i, len(legs), leg, current)
		if legErr != nil {
			e.handleFailure(ctx, cycle, executed.Symbol, stranded, legErr)
			return nil, legErr
		}
		current = next
		stranded = append(stranded, leg.To)
		result.Legs = append(result.Legs, executed)
	}

	final, err := e.freeBalance(ctx, base)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGatewayAPIError, "fetch balance after execution")
	}
	result.FinalBalance = final
	result.PnL = final.Sub(initial)

	_ = e.notifier.Notify(ctx, EventExecutionSuccess,
		"Ciclo executado",
		fmt.Sprintf("%s\nPnL: %s %s", cycle.String(), result.PnL.StringFixed(8), base))
	e.logger.Info(ctx, "cycle executed",
		"cycle", cycle.String(), "pnl", result.PnL.String())

	return result, nil
}

// executeLeg resolves, sizes, places and settles one leg. It returns the
// destination-currency balance that feeds the next leg.
func (e *Executor) executeLeg(
	ctx context.Context,
	index, total int,
	leg routing.Leg,
	current decimal.Decimal,
) (decimal.Decimal, domain.ExecutedLeg, error) {
	var executed domain.ExecutedLeg

	sym, side, ok := e.catalog.PairDetails(leg.From, leg.To)
	if !ok {
		return decimal.Zero, executed, apperror.New(apperror.CodePairUnresolvable,
			apperror.WithContext(fmt.Sprintf("%s -> %s", leg.From, leg.To)))
	}
	executed.Symbol = sym
	executed.Side = side

	mkt, ok := e.catalog.Lookup(sym)
	if !ok {
		return decimal.Zero, executed, apperror.New(apperror.CodeLimitViolation,
			apperror.WithContext("market metadata missing for "+sym.String()))
	}

	ticker, err := e.gateway.FetchTicker(ctx, sym)
	if err != nil {
		return decimal.Zero, executed, apperror.Wrap(err, apperror.CodeGatewayAPIError, "fetch ticker "+sym.String())
	}

	var amount, price decimal.Decimal
	if side == market.SideBuy {
		price = ticker.Ask
		if price.Sign() == 0 {
			return decimal.Zero, executed, apperror.New(apperror.CodeZeroPrice,
				apperror.WithContext("ask is zero for "+sym.String()))
		}
		amount = current.Div(price)
	} else {
		price = ticker.Bid
		amount = current
	}

	rounded, err := e.roundAmount(sym, amount)
	if err != nil {
		return decimal.Zero, executed, err
	}
	if err := e.checkLimits(sym, mkt.Limits, rounded, price); err != nil {
		return decimal.Zero, executed, err
	}
	executed.Amount = rounded

	_ = e.notifier.Notify(ctx, EventDiagnostic,
		fmt.Sprintf("Leg %d/%d", index+1, total),
		fmt.Sprintf("%s %s %s @ ~%s", side, rounded, sym.String(), price))

	var order market.Order
	if side == market.SideBuy {
		order, err = e.gateway.CreateMarketBuyOrder(ctx, sym, rounded)
	} else {
		order, err = e.gateway.CreateMarketSellOrder(ctx, sym, rounded)
	}
	if err != nil {
		return decimal.Zero, executed, apperror.Wrap(err, apperror.CodeGatewayAPIError, "place order "+sym.String())
	}
	executed.OrderID = order.ID

	if err := e.awaitFill(ctx, order.ID, sym); err != nil {
		return decimal.Zero, executed, err
	}

	// The settled destination balance is the authoritative input of the
	// next leg; fees are already folded in by the exchange.
	next, err := e.freeBalance(ctx, leg.To)
	if err != nil {
		return decimal.Zero, executed, apperror.Wrap(err, apperror.CodeGatewayAPIError, "fetch balance after leg")
	}

	e.logger.Info(ctx, "leg filled",
		"symbol", sym.String(), "side", string(side),
		"amount", rounded.String(), "settled", next.String(), "currency", string(leg.To))

	return next, executed, nil
}

// roundAmount applies the exchange's canonical precision rounding.
func (e *Executor) roundAmount(sym market.Symbol, amount decimal.Decimal) (decimal.Decimal, error) {
	str, err := e.gateway.AmountToPrecision(sym, amount)
	if err != nil {
		return decimal.Zero, apperror.Wrap(err, apperror.CodeLimitViolation, "amount precision for "+sym.String())
	}
	rounded, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero, apperror.New(apperror.CodeLimitViolation,
			apperror.WithCause(err),
			apperror.WithContext("unparseable precision amount for "+sym.String()))
	}
	return rounded, nil
}

func (e *Executor) checkLimits(sym market.Symbol, limits market.MarketLimits, amount, price decimal.Decimal) error {
	if amount.Sign() == 0 {
		return apperror.New(apperror.CodeLimitViolation,
			apperror.WithContext("amount rounds to zero for "+sym.String()))
	}
	if limits.MinAmount != nil && amount.LessThan(*limits.MinAmount) {
		return apperror.New(apperror.CodeLimitViolation,
			apperror.WithContext(fmt.Sprintf("%s amount %s below min %s", sym, amount, limits.MinAmount)))
	}
	if limits.MinCost != nil && amount.Mul(price).LessThan(*limits.MinCost) {
		return apperror.New(apperror.CodeLimitViolation,
			apperror.WithContext(fmt.Sprintf("%s cost %s below min %s", sym, amount.Mul(price), limits.MinCost)))
	}
	return nil
}

// awaitFill polls the order until it closes. Any other terminal status,
// or running out of time, is ORDER_UNFILLED.
func (e *Executor) awaitFill(ctx context.Context, id string, sym market.Symbol) error {
	deadline := time.Now().Add(e.cfg.OrderFillTimeout)
	for {
		order, err := e.gateway.FetchOrder(ctx, id, sym)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeGatewayAPIError, "fetch order "+id)
		}
		switch {
		case order.Status == market.OrderStatusClosed:
			return nil
		case order.Status.Terminal():
			return apperror.New(apperror.CodeOrderUnfilled,
				apperror.WithContext(fmt.Sprintf("order %s on %s ended %s", id, sym, order.Status)))
		}
		if time.Now().After(deadline) {
			return apperror.New(apperror.CodeOrderUnfilled,
				apperror.WithContext(fmt.Sprintf("order %s on %s not filled in time", id, sym)))
		}
		if !sleepCtx(ctx, e.cfg.OrderPollInterval) {
			return ctx.Err()
		}
	}
}

// handleFailure blacklists the failing pair and rescues the top stranded
// balance back to the cycle's base currency. All executor errors are
// fatal for the pair that produced them.
func (e *Executor) handleFailure(
	ctx context.Context,
	cycle routing.Cycle,
	failing market.Symbol,
	stranded []market.Currency,
	cause error,
) {
	ctx = context.WithoutCancel(ctx)

	if !failing.IsZero() {
		if err := e.blacklist.Add(ctx, failing.String()); err != nil {
			e.logger.Error(ctx, "failed to persist blacklist after execution fault",
				"symbol", failing.String(), "error", err)
		}
	}

	_ = e.notifier.Notify(ctx, EventExecutionFailure,
		"Falha na execução",
		fmt.Sprintf("%s\nPar: %s\nErro: %v", cycle.String(), failing.String(), cause))
	e.logger.Error(ctx, "cycle execution failed",
		"cycle", cycle.String(), "symbol", failing.String(), "error", cause)

	if len(stranded) == 0 {
		return
	}
	e.unwind(ctx, stranded[len(stranded)-1], cycle.Base())
}

// unwind converts the stranded currency back to base with a single market
// order on the direct pair. The direction comes from PairDetails; for a
// buy pair that means buying base with the stranded asset.
func (e *Executor) unwind(ctx context.Context, strandedCur, base market.Currency) {
	sym, side, ok := e.catalog.PairDetails(strandedCur, base)
	if !ok {
		e.alertUnwindFailure(ctx, strandedCur, apperror.New(apperror.CodePairUnresolvable,
			apperror.WithContext(fmt.Sprintf("%s -> %s", strandedCur, base))))
		return
	}

	free, err := e.freeBalance(ctx, strandedCur)
	if err != nil {
		e.alertUnwindFailure(ctx, strandedCur, err)
		return
	}
	if free.Sign() == 0 {
		_ = e.notifier.Notify(ctx, EventUnwind,
			"Reversão dispensada",
			fmt.Sprintf("Saldo de %s é zero, nada a reverter.", strandedCur))
		return
	}

	amount, err := e.roundAmount(sym, free)
	if err != nil || amount.Sign() == 0 {
		if err == nil {
			err = apperror.New(apperror.CodeLimitViolation,
				apperror.WithContext("unwind amount rounds to zero for "+sym.String()))
		}
		e.alertUnwindFailure(ctx, strandedCur, err)
		return
	}

	if side == market.SideBuy {
		_, err = e.gateway.CreateMarketBuyOrder(ctx, sym, amount)
	} else {
		_, err = e.gateway.CreateMarketSellOrder(ctx, sym, amount)
	}
	if err != nil {
		e.alertUnwindFailure(ctx, strandedCur, err)
		return
	}

	_ = e.notifier.Notify(ctx, EventUnwind,
		"Reversão executada",
		fmt.Sprintf("%s %s %s de volta para %s", side, amount, sym.String(), base))
	e.logger.Info(ctx, "emergency unwind placed",
		"symbol", sym.String(), "side", string(side), "amount", amount.String())
}

func (e *Executor) alertUnwindFailure(ctx context.Context, cur market.Currency, cause error) {
	err := apperror.Wrap(cause, apperror.CodeUnwindFailed, string(cur))
	e.logger.Error(ctx, "emergency unwind failed, manual intervention required",
		"currency", string(cur), "error", err)
	_ = e.notifier.Notify(ctx, EventManualAlert,
		"INTERVENÇÃO MANUAL NECESSÁRIA",
		fmt.Sprintf("Reversão de %s falhou: %v", cur, cause))
}

func (e *Executor) freeBalance(ctx context.Context, cur market.Currency) (decimal.Decimal, error) {
	balances, err := e.gateway.FetchBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[cur].Free, nil
}
