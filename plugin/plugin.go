// Package plugin provides an extensible plugin system for the session.
// Plugins can hook into ledger, job, and settlement lifecycle events to
// extend functionality.
package plugin

import (
	"context"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, session interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTransactionRecorded is called for every applied ledger mutation.
type OnTransactionRecorded interface {
	Plugin
	OnTransactionRecorded(ctx context.Context, txn *credit.Transaction) error
}

// OnBalanceChanged is called after the balance moves.
type OnBalanceChanged interface {
	Plugin
	OnBalanceChanged(ctx context.Context, balance int64) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobStateChanged is called on every job status transition.
type OnJobStateChanged interface {
	Plugin
	OnJobStateChanged(ctx context.Context, j *job.Job) error
}

// OnJobCompleted is called when a job finishes with a result.
type OnJobCompleted interface {
	Plugin
	OnJobCompleted(ctx context.Context, j *job.Job) error
}

// OnJobFailed is called when a job reaches a failed, cancelled, or
// refunded terminal state.
type OnJobFailed interface {
	Plugin
	OnJobFailed(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called when a subscription cycle grant lands.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, grant *settlement.Grant) error
}

// OnSettlementSynced is called after each settlement pass.
type OnSettlementSynced interface {
	Plugin
	OnSettlementSynced(ctx context.Context, summary *settlement.Summary) error
}
