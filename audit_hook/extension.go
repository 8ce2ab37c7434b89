// Package audithook bridges session lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// any particular audit backend directly. Callers inject a RecorderFunc
// adapter that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/plugin"
	"github.com/vidscribe/vidscribe/settlement"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnTransactionRecorded = (*Extension)(nil)
	_ plugin.OnBalanceChanged      = (*Extension)(nil)
	_ plugin.OnJobStateChanged     = (*Extension)(nil)
	_ plugin.OnJobCompleted        = (*Extension)(nil)
	_ plugin.OnJobFailed           = (*Extension)(nil)
	_ plugin.OnCreditsGranted      = (*Extension)(nil)
	_ plugin.OnSettlementSynced    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend
// on a concrete audit trail module — callers inject one at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges session lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (e *Extension) OnTransactionRecorded(ctx context.Context, txn *credit.Transaction) error {
	action := ActionCreditsGranted
	switch txn.Kind {
	case credit.KindDeduction:
		action = ActionCreditsSpent
	case credit.KindRefund:
		action = ActionCreditsRefunded
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, txn.ID.String(), CategoryCredits, nil,
		"user_id", txn.UserID.String(),
		"amount", txn.Amount,
		"kind", string(txn.Kind),
		"reference", txn.Reference,
		"balance_after", txn.BalanceAfter,
	)
}

// OnBalanceChanged implements plugin.OnBalanceChanged.
func (e *Extension) OnBalanceChanged(ctx context.Context, balance int64) error {
	return e.record(ctx, ActionBalanceChanged, SeverityInfo, OutcomeSuccess,
		ResourceBalance, "", CategoryCredits, nil,
		"balance", balance,
	)
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobStateChanged implements plugin.OnJobStateChanged.
func (e *Extension) OnJobStateChanged(ctx context.Context, j *job.Job) error {
	// Only the initial transition is audited here; terminal states are
	// covered by OnJobCompleted and OnJobFailed.
	if j.Status != job.StatusValidating {
		return nil
	}
	return e.record(ctx, ActionJobSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJobs, nil,
		"user_id", j.UserID.String(),
		"source", j.SourcePath,
	)
}

// OnJobCompleted implements plugin.OnJobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJobs, nil,
		"user_id", j.UserID.String(),
		"duration_seconds", j.DurationSeconds,
		"credits_spent", j.CreditsReserved,
		"result", j.ResultPath,
	)
}

// OnJobFailed implements plugin.OnJobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job) error {
	action := ActionJobFailed
	severity := SeverityError
	if j.Status == job.StatusCancelled {
		action = ActionJobCancelled
		severity = SeverityInfo
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJobs, nil,
		"user_id", j.UserID.String(),
		"status", string(j.Status),
		"failure_reason", j.FailureReason,
		"credits_reserved", j.CreditsReserved,
		"credits_refunded", j.CreditsRefunded,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, grant *settlement.Grant) error {
	return e.record(ctx, ActionGrantApplied, SeverityInfo, OutcomeSuccess,
		ResourceGrant, grant.ID.String(), CategorySettlement, nil,
		"user_id", grant.UserID.String(),
		"tier", string(grant.Tier),
		"credits", grant.Credits,
	)
}

// OnSettlementSynced implements plugin.OnSettlementSynced.
func (e *Extension) OnSettlementSynced(ctx context.Context, summary *settlement.Summary) error {
	// Only audit passes that actually moved credits to reduce noise.
	if summary.GrantedCredits == 0 && summary.SettledPurchases == 0 {
		return nil
	}
	return e.record(ctx, ActionSettlementSynced, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, "", CategorySettlement, nil,
		"tier", string(summary.Tier),
		"granted_credits", summary.GrantedCredits,
		"settled_purchases", summary.SettledPurchases,
		"settled_credits", summary.SettledCredits,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
