package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	booksapp "github.com/dpfaria/triarb/business/books/app"
	"github.com/dpfaria/triarb/business/engine/domain"
	marketapp "github.com/dpfaria/triarb/business/market/app"
	market "github.com/dpfaria/triarb/business/market/domain"
	routingapp "github.com/dpfaria/triarb/business/routing/app"
	routing "github.com/dpfaria/triarb/business/routing/domain"
	"github.com/dpfaria/triarb/internal/logger"
	"github.com/dpfaria/triarb/internal/metrics"
)

// EngineState is the operator-mutable configuration read at the top of
// every loop iteration.
type EngineState struct {
	Running       bool
	DryRun        bool
	MinProfitPct  decimal.Decimal
	VolumePercent decimal.Decimal
	MaxDepth      int
}

// StateSource provides a consistent snapshot of the engine state. The
// control plane is the single writer.
type StateSource interface {
	Snapshot() EngineState
}

// LoopConfig tunes the scan cadence.
type LoopConfig struct {
	SafetyMargin    decimal.Decimal
	AbsoluteMinimum decimal.Decimal
	ScanInterval    time.Duration
	WarmupDelay     time.Duration
	HitCooldown     time.Duration
	PauseInterval   time.Duration
}

// Loop is the analysis loop: it keeps routes and streams reconciled,
// simulates every cycle against the cache and hands winners to the
// executor.
type Loop struct {
	state     StateSource
	gateway   marketapp.ExchangeGateway
	planner   *routingapp.Planner
	streams   *booksapp.Supervisor
	simulator *Simulator
	executor  *Executor
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    logger.LoggerInterface
	cfg       LoopConfig

	cycles    []routing.Cycle
	lastDepth int
}

// NewLoop wires the engine loop.
func NewLoop(
	state StateSource,
	gw marketapp.ExchangeGateway,
	planner *routingapp.Planner,
	streams *booksapp.Supervisor,
	sim *Simulator,
	exec *Executor,
	notifier Notifier,
	m *metrics.Metrics,
	cfg LoopConfig,
	log logger.LoggerInterface,
) *Loop {
	if cfg.PauseInterval == 0 {
		cfg.PauseInterval = time.Second
	}
	return &Loop{
		state:     state,
		gateway:   gw,
		planner:   planner,
		streams:   streams,
		simulator: sim,
		executor:  exec,
		notifier:  notifier,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
		lastDepth: -1,
	}
}

// Reset forces a route rebuild on the next iteration. The supervisor
// calls it after a restart so blacklist changes take effect.
func (l *Loop) Reset() {
	l.cycles = nil
	l.lastDepth = -1
}

// Run iterates until the context ends. It only returns early on an
// unhandled fault, which the supervisor translates into a restart.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		st := l.state.Snapshot()
		if !st.Running {
			if !sleepCtx(ctx, l.cfg.PauseInterval) {
				return ctx.Err()
			}
			continue
		}

		hit, err := l.iterate(ctx, st)
		if err != nil {
			return err
		}

		wait := l.cfg.ScanInterval
		if hit {
			wait = l.cfg.HitCooldown
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// iterate performs one full scan. The returned bool reports whether an
// opportunity was hit (which triggers the long cooldown).
func (l *Loop) iterate(ctx context.Context, st EngineState) (bool, error) {
	started := time.Now()
	defer func() {
		l.metrics.ScanDuration.Observe(time.Since(started).Seconds())
	}()

	balances, err := l.gateway.FetchBalance(ctx)
	if err != nil {
		// Transient REST faults are swallowed; the next iteration retries.
		l.logger.Warn(ctx, "balance fetch failed, skipping scan", "error", err)
		return false, nil
	}
	volumes := l.volumes(st, balances)

	if st.MaxDepth != l.lastDepth || l.cycles == nil {
		l.cycles = l.planner.Build(ctx, st.MaxDepth)
		l.lastDepth = st.MaxDepth
	}

	l.streams.Reconcile(ctx, l.planner.RequiredSymbols(l.cycles))

	// Give freshly spawned streams a moment to deliver a first snapshot.
	if !sleepCtx(ctx, l.cfg.WarmupDelay) {
		return false, ctx.Err()
	}

	for _, cycle := range l.cycles {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		volume, ok := volumes[cycle.Base()]
		if !ok || volume.LessThan(l.cfg.AbsoluteMinimum) {
			continue
		}

		l.metrics.CyclesSimulated.Inc()
		profit, feasible := l.simulator.Simulate(cycle, volume)
		if !feasible || !profit.GreaterThan(st.MinProfitPct) {
			continue
		}

		opp := domain.Opportunity{Cycle: cycle, ProfitPct: profit, Volume: volume}
		l.metrics.Opportunities.Inc()
		l.logger.Info(ctx, "opportunity found",
			"cycle", opp.Cycle.String(), "profit_pct", opp.ProfitPct.String(), "volume", opp.Volume.String())
		_ = l.notifier.Notify(ctx, EventOpportunity,
			"Oportunidade encontrada",
			fmt.Sprintf("%s\nLucro simulado: %s%%\nVolume: %s %s",
				opp.Cycle.String(), opp.ProfitPct.StringFixed(4), opp.Volume.StringFixed(2), opp.Cycle.Base()))

		if !st.DryRun {
			if _, execErr := l.executor.Execute(ctx, opp.Cycle, opp.Volume); execErr != nil {
				l.metrics.Executions.WithLabelValues("failure").Inc()
			} else {
				l.metrics.Executions.WithLabelValues("success").Inc()
			}
		}
		return true, nil
	}

	return false, nil
}

// sleepCtx sleeps for d and reports false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// volumes computes the tradable notional per base currency:
// free balance x volume percent x safety margin.
func (l *Loop) volumes(st EngineState, balances map[market.Currency]market.Balance) map[market.Currency]decimal.Decimal {
	pct := st.VolumePercent.Div(oneHundred)
	out := make(map[market.Currency]decimal.Decimal)
	for _, base := range l.planner.Bases() {
		out[base] = balances[base].Free.Mul(pct).Mul(l.cfg.SafetyMargin)
	}
	return out
}
