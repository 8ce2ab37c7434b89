// Package observability provides a metrics extension for the session that
// records lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/plugin"
	"github.com/vidscribe/vidscribe/settlement"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRecorded = (*MetricsExtension)(nil)
	_ plugin.OnBalanceChanged      = (*MetricsExtension)(nil)
	_ plugin.OnJobStateChanged     = (*MetricsExtension)(nil)
	_ plugin.OnJobCompleted        = (*MetricsExtension)(nil)
	_ plugin.OnJobFailed           = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted      = (*MetricsExtension)(nil)
	_ plugin.OnSettlementSynced    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records session-wide lifecycle metrics.
// Register it as a session plugin to automatically track credit and job metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditsGranted  Counter
	CreditsSpent    Counter
	CreditsRefunded Counter
	BalanceGauge    Histogram
	TransactionSize Histogram

	// Job metrics
	JobsSubmitted Counter
	JobsCompleted Counter
	JobsFailed    Counter
	JobsCancelled Counter
	JobDuration   Histogram
	JobCreditCost Histogram

	// Settlement metrics
	GrantCycles       Counter
	PurchasesSettled  Counter
	SettlementCredits Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Credit metrics
		CreditsGranted:  factory.Counter("vidscribe.credits.granted"),
		CreditsSpent:    factory.Counter("vidscribe.credits.spent"),
		CreditsRefunded: factory.Counter("vidscribe.credits.refunded"),
		BalanceGauge:    factory.Histogram("vidscribe.balance"),
		TransactionSize: factory.Histogram("vidscribe.transaction.amount"),

		// Job metrics
		JobsSubmitted: factory.Counter("vidscribe.job.submitted"),
		JobsCompleted: factory.Counter("vidscribe.job.completed"),
		JobsFailed:    factory.Counter("vidscribe.job.failed"),
		JobsCancelled: factory.Counter("vidscribe.job.cancelled"),
		JobDuration:   factory.Histogram("vidscribe.job.duration_seconds"),
		JobCreditCost: factory.Histogram("vidscribe.job.credit_cost"),

		// Settlement metrics
		GrantCycles:       factory.Counter("vidscribe.settlement.grants"),
		PurchasesSettled:  factory.Counter("vidscribe.settlement.purchases"),
		SettlementCredits: factory.Histogram("vidscribe.settlement.credits"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (m *MetricsExtension) OnTransactionRecorded(_ context.Context, txn *credit.Transaction) error {
	switch {
	case txn.Kind == credit.KindDeduction:
		m.CreditsSpent.Add(float64(-txn.Amount))
	case txn.Kind == credit.KindRefund:
		m.CreditsRefunded.Add(float64(txn.Amount))
	case txn.Amount > 0:
		m.CreditsGranted.Add(float64(txn.Amount))
	}
	amount := txn.Amount
	if amount < 0 {
		amount = -amount
	}
	m.TransactionSize.Observe(float64(amount))
	return nil
}

// OnBalanceChanged implements plugin.OnBalanceChanged.
func (m *MetricsExtension) OnBalanceChanged(_ context.Context, balance int64) error {
	m.BalanceGauge.Observe(float64(balance))
	return nil
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobStateChanged implements plugin.OnJobStateChanged.
func (m *MetricsExtension) OnJobStateChanged(_ context.Context, j *job.Job) error {
	if j.Status == job.StatusValidating {
		m.JobsSubmitted.Inc()
	}
	return nil
}

// OnJobCompleted implements plugin.OnJobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job) error {
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(j.DurationSeconds)
	m.JobCreditCost.Observe(float64(j.CreditsReserved))
	return nil
}

// OnJobFailed implements plugin.OnJobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, j *job.Job) error {
	if j.Status == job.StatusCancelled {
		m.JobsCancelled.Inc()
	} else {
		m.JobsFailed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, grant *settlement.Grant) error {
	m.GrantCycles.Inc()
	m.SettlementCredits.Observe(float64(grant.Credits))
	return nil
}

// OnSettlementSynced implements plugin.OnSettlementSynced.
func (m *MetricsExtension) OnSettlementSynced(_ context.Context, summary *settlement.Summary) error {
	if summary.SettledPurchases > 0 {
		m.PurchasesSettled.Add(float64(summary.SettledPurchases))
	}
	return nil
}
