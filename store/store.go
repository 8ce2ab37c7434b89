// Package store defines the unified storage interface for all session
// entities, with memory, sqlite, postgres, and mongo backends in
// sub-packages.
package store

import (
	"context"
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	"github.com/vidscribe/vidscribe/user"
)

// Store is the unified storage interface for all session entities.
// Instead of embedding the sub-interfaces, we explicitly declare all
// methods to avoid naming conflicts.
type Store interface {
	// User methods
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, userID id.UserID) (*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error

	// Credit methods
	Balance(ctx context.Context, userID id.UserID) (int64, error)
	IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error)
	SetBalance(ctx context.Context, userID id.UserID, balance int64) error
	AppendTransaction(ctx context.Context, txn *credit.Transaction) error
	ListTransactions(ctx context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error)

	// Job methods
	SaveJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
	ListJobs(ctx context.Context, userID id.UserID, opts job.ListOpts) ([]*job.Job, error)
	ListRefundPending(ctx context.Context, userID id.UserID) ([]*job.Job, error)

	// Settlement methods
	IsPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string) (bool, error)
	MarkPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string, at time.Time) error
	LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error)
	RecordGrant(ctx context.Context, grant *settlement.Grant) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
