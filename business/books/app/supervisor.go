package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	marketapp "github.com/dpfaria/triarb/business/market/app"
	market "github.com/dpfaria/triarb/business/market/domain"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
	"github.com/dpfaria/triarb/internal/metrics"
)

// WorkerState is the lifecycle position of one stream worker.
type WorkerState string

const (
	StateConnecting WorkerState = "connecting"
	StateSubscribed WorkerState = "subscribed"
	StateHealthy    WorkerState = "healthy"
	StateDegraded   WorkerState = "degraded"
	StateFatal      WorkerState = "fatal"
	StateCancelled  WorkerState = "cancelled"
)

// BlacklistStore is the read/write side of the persistent blacklist.
type BlacklistStore interface {
	Contains(symbol string) bool
	Add(ctx context.Context, symbol string) error
}

// Notifier delivers operator-facing events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SupervisorConfig tunes the per-worker reconnect policy.
type SupervisorConfig struct {
	Depth                int
	ReconnectBackoff     time.Duration
	MaxReconnectAttempts int
}

type worker struct {
	symbol market.Symbol
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state WorkerState
}

func (w *worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Supervisor keeps one streaming worker per required symbol and owns their
// cache entries. Reconciliation is driven by the engine loop; teardown by
// the engine supervisor.
type Supervisor struct {
	gateway   marketapp.ExchangeGateway
	cache     *Cache
	blacklist BlacklistStore
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    logger.LoggerInterface
	cfg       SupervisorConfig

	mu      sync.Mutex
	workers map[market.Symbol]*worker
	group   *errgroup.Group
}

// NewSupervisor creates a stream supervisor over the given cache.
func NewSupervisor(
	gw marketapp.ExchangeGateway,
	cache *Cache,
	bl BlacklistStore,
	notifier Notifier,
	m *metrics.Metrics,
	cfg SupervisorConfig,
	log logger.LoggerInterface,
) *Supervisor {
	return &Supervisor{
		gateway:   gw,
		cache:     cache,
		blacklist: bl,
		notifier:  notifier,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
		workers:   make(map[market.Symbol]*worker),
		group:     &errgroup.Group{},
	}
}

// Cache returns the cache this supervisor populates.
func (s *Supervisor) Cache() *Cache {
	return s.cache
}

// Reconcile brings the worker set in line with the required symbols:
// spawns missing workers, cancels and evicts the no-longer-required ones,
// and prunes workers that have already exited.
func (s *Supervisor) Reconcile(ctx context.Context, required map[market.Symbol]struct{}) {
	var evicted []*worker

	s.mu.Lock()
	for sym, w := range s.workers {
		if !w.alive() {
			delete(s.workers, sym)
			continue
		}
		if _, need := required[sym]; !need {
			w.cancel()
			evicted = append(evicted, w)
			delete(s.workers, sym)
		}
	}
	for sym := range required {
		if s.blacklist.Contains(sym.String()) {
			continue
		}
		if _, ok := s.workers[sym]; ok {
			continue
		}
		s.spawnLocked(ctx, sym)
	}
	active := len(s.workers)
	s.mu.Unlock()

	s.metrics.ActiveStreams.Set(float64(active))

	// Eviction is acknowledged before the cache entry goes away so a
	// half-dead worker can never resurrect it.
	for _, w := range evicted {
		<-w.done
		s.cache.Delete(w.symbol)
		s.logger.Info(ctx, "stream evicted", "symbol", w.symbol.String())
	}
}

func (s *Supervisor) spawnLocked(ctx context.Context, sym market.Symbol) {
	wctx, cancel := context.WithCancel(ctx)
	w := &worker{
		symbol: sym,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
	s.workers[sym] = w
	s.group.Go(func() error {
		defer close(w.done)
		s.runWorker(wctx, w)
		return nil
	})
}

// CancelAll cooperatively stops every worker and waits for them to exit.
// Cache entries of cancelled workers are removed by the workers themselves.
func (s *Supervisor) CancelAll(ctx context.Context) {
	s.mu.Lock()
	for _, w := range s.workers {
		w.cancel()
	}
	s.workers = make(map[market.Symbol]*worker)
	group := s.group
	s.group = &errgroup.Group{}
	s.mu.Unlock()

	_ = group.Wait()
	s.metrics.ActiveStreams.Set(0)
	s.logger.Info(ctx, "all stream workers stopped")
}

// ActiveSymbols returns the symbols with a live worker.
func (s *Supervisor) ActiveSymbols() []market.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]market.Symbol, 0, len(s.workers))
	for sym, w := range s.workers {
		if w.alive() {
			out = append(out, sym)
		}
	}
	return out
}

// runWorker drives one symbol's stream through the
// Connecting -> Subscribed -> Healthy <-> Degraded state machine until
// cancellation or a fatal fault.
func (s *Supervisor) runWorker(ctx context.Context, w *worker) {
	sym := w.symbol
	attempts := 0

	for {
		if ctx.Err() != nil {
			s.cancelled(ctx, w)
			return
		}

		w.setState(StateConnecting)
		stream, err := s.gateway.WatchOrderBook(ctx, sym, s.cfg.Depth)
		if err != nil {
			if ctx.Err() != nil {
				s.cancelled(ctx, w)
				return
			}
			if !apperror.IsTransient(err) {
				s.fatal(ctx, w, err)
				return
			}
			attempts++
			s.metrics.StreamReconnects.Inc()
			if attempts >= s.cfg.MaxReconnectAttempts {
				s.fatal(ctx, w, err)
				return
			}
			w.setState(StateDegraded)
			s.logger.Warn(ctx, "stream connect failed, backing off",
				"symbol", sym.String(), "attempt", attempts, "error", err)
			if !sleepCtx(ctx, s.cfg.ReconnectBackoff) {
				s.cancelled(ctx, w)
				return
			}
			continue
		}

		subscribed := false
		for {
			book, err := stream.Recv(ctx)
			if err != nil {
				_ = stream.Close()
				if ctx.Err() != nil {
					s.cancelled(ctx, w)
					return
				}
				if !apperror.IsTransient(err) {
					s.fatal(ctx, w, err)
					return
				}
				attempts++
				s.metrics.StreamReconnects.Inc()
				if attempts >= s.cfg.MaxReconnectAttempts {
					s.fatal(ctx, w, err)
					return
				}
				w.setState(StateDegraded)
				s.logger.Warn(ctx, "stream degraded, backing off",
					"symbol", sym.String(), "attempt", attempts, "error", err)
				if !sleepCtx(ctx, s.cfg.ReconnectBackoff) {
					s.cancelled(ctx, w)
					return
				}
				break
			}

			if !subscribed {
				subscribed = true
				attempts = 0
				w.setState(StateSubscribed)
				s.logger.Debug(ctx, "stream subscribed", "symbol", sym.String())
			} else {
				w.setState(StateHealthy)
			}
			s.cache.Set(sym, book)
			s.metrics.SnapshotsReceived.WithLabelValues(sym.String()).Inc()
		}
	}
}

func (s *Supervisor) cancelled(ctx context.Context, w *worker) {
	w.setState(StateCancelled)
	s.cache.Delete(w.symbol)
}

// fatal blacklists the symbol durably, notifies the operator, evicts the
// cache entry and lets the worker exit. Reconciliation will not recreate it.
func (s *Supervisor) fatal(ctx context.Context, w *worker, cause error) {
	sym := w.symbol
	w.setState(StateFatal)
	s.metrics.StreamFatals.Inc()

	// Persist first: the blacklist must hit disk before the next analysis
	// iteration can run.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.blacklist.Add(persistCtx, sym.String()); err != nil {
		s.logger.Error(ctx, "failed to persist blacklist after stream fatal",
			"symbol", sym.String(), "error", err)
	}
	s.cache.Delete(sym)

	s.logger.Error(ctx, "stream worker failed fatally",
		"symbol", sym.String(), "error", cause)
	_ = s.notifier.Notify(persistCtx, "stream_fatal",
		"Stream desativado",
		sym.String()+" foi adicionado à blacklist após falha no stream: "+cause.Error())
}

// sleepCtx sleeps for d unless the context ends first. Returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
