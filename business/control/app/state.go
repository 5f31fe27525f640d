// Package app implements the operator control plane: the mutable engine
// state, the command router and the event notifier.
package app

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	engineapp "github.com/dpfaria/triarb/business/engine/app"
	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/config"
)

// State holds the operator-mutable engine parameters. The command router
// is the single writer; the engine loop reads consistent snapshots.
type State struct {
	mu sync.RWMutex
	st engineapp.EngineState
}

// NewState seeds the state from the boot configuration.
func NewState(cfg *config.EngineConfig) *State {
	return &State{
		st: engineapp.EngineState{
			Running:       true,
			DryRun:        cfg.DryRun,
			MinProfitPct:  cfg.MinProfitPctDecimal(),
			VolumePercent: cfg.VolumePercentDecimal(),
			MaxDepth:      cfg.MaxDepth,
		},
	}
}

// Snapshot returns a consistent copy of the current state.
func (s *State) Snapshot() engineapp.EngineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

// SetRunning pauses or resumes the analysis loop.
func (s *State) SetRunning(running bool) {
	s.mu.Lock()
	s.st.Running = running
	s.mu.Unlock()
}

// SetDryRun switches between simulated and live execution.
func (s *State) SetDryRun(dryRun bool) {
	s.mu.Lock()
	s.st.DryRun = dryRun
	s.mu.Unlock()
}

// SetMinProfitPct updates the profit threshold. Negative thresholds are
// rejected.
func (s *State) SetMinProfitPct(pct decimal.Decimal) error {
	if pct.Sign() < 0 {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("profit threshold cannot be negative"),
			apperror.WithContext("got "+pct.String()))
	}
	s.mu.Lock()
	s.st.MinProfitPct = pct
	s.mu.Unlock()
	return nil
}

// SetVolumePercent updates the balance fraction committed per cycle.
// Valid range is (0, 100].
func (s *State) SetVolumePercent(pct decimal.Decimal) error {
	if pct.Sign() <= 0 || pct.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("volume percent must be in (0, 100]"),
			apperror.WithContext("got "+pct.String()))
	}
	s.mu.Lock()
	s.st.VolumePercent = pct
	s.mu.Unlock()
	return nil
}

// SetMaxDepth updates the maximum cycle length in legs.
func (s *State) SetMaxDepth(depth int) error {
	if depth < config.MinRouteDepth || depth > config.MaxRouteDepth {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("depth out of range"),
			apperror.WithContext(fmt.Sprintf("got %d, valid range [%d,%d]",
				depth, config.MinRouteDepth, config.MaxRouteDepth)))
	}
	s.mu.Lock()
	s.st.MaxDepth = depth
	s.mu.Unlock()
	return nil
}
