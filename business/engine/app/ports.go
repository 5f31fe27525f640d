package app

import (
	"context"
)

// BlacklistStore is the engine's view of the persistent blacklist.
type BlacklistStore interface {
	Contains(symbol string) bool
	Add(ctx context.Context, symbol string) error
	Len() int
}

// Notifier delivers operator-facing events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventOpportunity      = "opportunity"
	EventDiagnostic       = "diagnostic"
	EventExecutionSuccess = "execution_success"
	EventExecutionFailure = "execution_failure"
	EventUnwind           = "unwind"
	EventManualAlert      = "manual_intervention"
	EventEngineRestart    = "engine_restart"
)
