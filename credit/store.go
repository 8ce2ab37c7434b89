package credit

import (
	"context"

	"github.com/vidscribe/vidscribe/id"
)

// Store is the remote persistence boundary for the ledger: a per-user
// balance field plus an append-only transaction log.
type Store interface {
	Balance(ctx context.Context, userID id.UserID) (int64, error)
	// IncrementBalance atomically adds delta to the stored balance and
	// returns the new value. Delta may be negative.
	IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error)
	SetBalance(ctx context.Context, userID id.UserID, balance int64) error
	AppendTransaction(ctx context.Context, txn *Transaction) error
	ListTransactions(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Transaction, error)
}

// ListOpts filters and pages transaction queries. Results are ordered by
// timestamp, newest first.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}

// Cache is the local low-latency balance mirror consulted before the
// remote store. Implementations must tolerate concurrent use.
type Cache interface {
	// Get returns the cached balance for the user, if present.
	Get(userID id.UserID) (int64, bool)
	Put(userID id.UserID, balance int64) error
	Delete(userID id.UserID) error
}
