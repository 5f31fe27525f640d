package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	booksapp "github.com/dpfaria/triarb/business/books/app"
	marketapp "github.com/dpfaria/triarb/business/market/app"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
	"github.com/dpfaria/triarb/internal/metrics"
)

// SupervisorConfig tunes the restart behaviour.
type SupervisorConfig struct {
	RestartCooldown time.Duration
}

// Supervisor runs the engine loop and restarts it after any unhandled
// fault: tear down streams, drop the cache, wait out the cooldown,
// reload the catalog and resume with fresh routes.
type Supervisor struct {
	loop     *Loop
	catalog  *marketapp.Catalog
	streams  *booksapp.Supervisor
	cache    cacheResetter
	notifier Notifier
	metrics  *metrics.Metrics
	logger   logger.LoggerInterface
	cfg      SupervisorConfig
}

type cacheResetter interface {
	Clear()
}

// NewSupervisor wires the engine supervisor.
func NewSupervisor(
	loop *Loop,
	catalog *marketapp.Catalog,
	streams *booksapp.Supervisor,
	cache cacheResetter,
	notifier Notifier,
	m *metrics.Metrics,
	cfg SupervisorConfig,
	log logger.LoggerInterface,
) *Supervisor {
	return &Supervisor{
		loop:     loop,
		catalog:  catalog,
		streams:  streams,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		logger:   log,
		cfg:      cfg,
	}
}

// Run blocks until the context ends. The loop's own error handling never
// surfaces here; anything that does is treated as a fault worth a full
// restart.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.metrics.EngineRestarts.Inc()
		s.logger.Error(ctx, "engine fault, restarting", "error", err)
		_ = s.notifier.Notify(ctx, EventEngineRestart,
			"Motor reiniciando",
			fmt.Sprintf("Falha não tratada: %v\nReinício em %s.", err, s.cfg.RestartCooldown))

		s.teardown(ctx)

		if !sleepCtx(ctx, s.cfg.RestartCooldown) {
			return ctx.Err()
		}
	}
}

// runOnce reloads the catalog and runs the loop until it faults. Panics
// are converted into errors so a single bad iteration never kills the
// process.
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.New(apperror.CodeInternalError,
				apperror.WithMessage(fmt.Sprintf("engine panic: %v", r)),
				apperror.WithContext(string(debug.Stack())))
		}
	}()

	if loadErr := s.catalog.Load(ctx); loadErr != nil {
		return loadErr
	}

	s.loop.Reset()
	return s.loop.Run(ctx)
}

// teardown cancels every stream worker and drops the cached books so the
// next incarnation starts from a clean slate.
func (s *Supervisor) teardown(ctx context.Context) {
	tearCtx := context.WithoutCancel(ctx)
	s.streams.CancelAll(tearCtx)
	s.cache.Clear()
}
