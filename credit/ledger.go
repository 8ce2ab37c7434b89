// Package credit implements the per-user credit ledger: an authoritative
// in-process balance backed by a local cache and a remote store, with
// every mutation recorded as an immutable transaction.
package credit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidscribe/vidscribe/id"
)

// MutationHook observes every applied ledger mutation. Hooks run inside
// the write path and must be fast; failures cannot veto a mutation.
type MutationHook func(txn *Transaction, balance int64)

// Ledger is the single writer for one user's credit balance. All
// balance-mutating calls are serialized; reads may interleave freely.
//
// Mutations apply in a fixed order: in-memory balance, local cache,
// remote store (atomic increment), transaction append. When remote
// propagation fails the local value remains the source of truth and the
// ledger marks itself dirty; Flush retries until the remote catches up,
// so a transient network failure never shows the user a stale (lower)
// balance.
type Ledger struct {
	userID id.UserID
	store  Store
	cache  Cache
	logger *slog.Logger
	hook   MutationHook

	mu      chanMutex
	balance int64
	loaded  bool

	// Remote reconciliation state, guarded by mu.
	dirty   bool
	lag     int64          // net delta not yet applied to the remote balance
	pending []*Transaction // transactions not yet appended remotely
}

// chanMutex is a context-aware mutex: Lock blocks until acquired or the
// context is done. A plain sync.Mutex would hold mutating callers
// uninterruptibly through remote store round-trips.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithCache sets the local balance cache.
func WithCache(cache Cache) Option {
	return func(l *Ledger) { l.cache = cache }
}

// WithMutationHook registers an observer for applied mutations.
func WithMutationHook(hook MutationHook) Option {
	return func(l *Ledger) { l.hook = hook }
}

// NewLedger creates a ledger for the given user backed by the store.
// Call Sync before the first read to hydrate the balance.
func NewLedger(userID id.UserID, store Store, opts ...Option) *Ledger {
	l := &Ledger{
		userID: userID,
		store:  store,
		logger: slog.Default(),
		mu:     make(chanMutex, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sync hydrates the in-memory balance from the fastest synchronized
// source: the local cache when present, otherwise the remote store. When
// the ledger has no unflushed local mutations the remote value wins, so
// grants applied from another device become visible.
func (l *Ledger) Sync(ctx context.Context) error {
	if err := l.mu.lock(ctx); err != nil {
		return err
	}
	defer l.mu.unlock()

	if l.dirty {
		// Local mutations outrank the remote copy until flushed.
		return nil
	}

	if !l.loaded && l.cache != nil {
		if cached, ok := l.cache.Get(l.userID); ok {
			l.balance = cached
			l.loaded = true
		}
	}

	remote, err := l.store.Balance(ctx, l.userID)
	if err != nil {
		if l.loaded {
			l.logger.Warn("ledger sync: remote read failed, keeping cached balance",
				"user_id", l.userID, "error", err)
			return nil
		}
		return fmt.Errorf("vidscribe: sync balance: %w", err)
	}

	l.balance = remote
	l.loaded = true
	l.putCache(remote)
	return nil
}

// Balance returns the current balance from the in-process copy.
func (l *Ledger) Balance() int64 {
	l.mu <- struct{}{}
	defer l.mu.unlock()
	return l.balance
}

// HasSufficientCredits reports whether the balance covers a video of the
// given duration.
func (l *Ledger) HasSufficientCredits(durationSeconds float64) bool {
	return l.Balance() >= RequiredCredits(durationSeconds)
}

// Credit increases the balance and appends a transaction of the given
// kind. Fails with ErrInvalidAmount unless amount > 0.
func (l *Ledger) Credit(ctx context.Context, amount int64, kind Kind, reference, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, amount, kind, reference, description)
}

// Debit decreases the balance and appends a negative transaction. Fails
// with ErrInvalidAmount unless amount > 0, and with
// InsufficientCreditsError when amount exceeds the current balance —
// the balance is never observed negative.
func (l *Ledger) Debit(ctx context.Context, amount int64, kind Kind, reference, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, -amount, kind, reference, description)
}

// Refund returns previously debited credits. Refunds are not bounded by
// the current balance; they always succeed for a valid amount.
func (l *Ledger) Refund(ctx context.Context, amount int64, reference, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, amount, KindRefund, reference, description)
}

// Transactions returns the transaction history from the remote store,
// newest first.
func (l *Ledger) Transactions(ctx context.Context, opts ListOpts) ([]*Transaction, error) {
	return l.store.ListTransactions(ctx, l.userID, opts)
}

// Dirty reports whether local mutations are still awaiting remote
// propagation.
func (l *Ledger) Dirty() bool {
	l.mu <- struct{}{}
	defer l.mu.unlock()
	return l.dirty
}

// apply performs one serialized mutation: balance, cache, remote
// increment, transaction append. Remote failures are absorbed into the
// reconciliation backlog rather than surfaced — the local mutation has
// already happened and must not be lost.
func (l *Ledger) apply(ctx context.Context, delta int64, kind Kind, reference, description string) (*Transaction, error) {
	if err := l.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer l.mu.unlock()

	newBalance := l.balance + delta
	if newBalance < 0 {
		return nil, &InsufficientCreditsError{Required: -delta, Available: l.balance}
	}

	txn := &Transaction{
		ID:           id.NewTransactionID(),
		UserID:       l.userID,
		Amount:       delta,
		Kind:         kind,
		Reference:    reference,
		Timestamp:    time.Now().UTC(),
		BalanceAfter: newBalance,
		Description:  description,
	}

	l.balance = newBalance
	l.loaded = true
	l.putCache(newBalance)

	if _, err := l.store.IncrementBalance(ctx, l.userID, delta); err != nil {
		l.dirty = true
		l.lag += delta
		l.pending = append(l.pending, txn)
		l.logger.Warn("ledger: remote propagation failed, queued for reconciliation",
			"user_id", l.userID, "kind", kind, "amount", delta, "error", err)
	} else if err := l.store.AppendTransaction(ctx, txn); err != nil {
		l.dirty = true
		l.pending = append(l.pending, txn)
		l.logger.Warn("ledger: transaction append failed, queued for reconciliation",
			"user_id", l.userID, "txn_id", txn.ID, "error", err)
	}

	if l.hook != nil {
		l.hook(txn, newBalance)
	}

	l.logger.Debug("ledger mutation applied",
		"user_id", l.userID, "kind", kind, "amount", delta, "balance", newBalance)

	return txn, nil
}

// Flush pushes any unpropagated local state to the remote store. It is
// called by the session reconciler and is safe to call when clean.
func (l *Ledger) Flush(ctx context.Context) error {
	if err := l.mu.lock(ctx); err != nil {
		return err
	}
	defer l.mu.unlock()

	if !l.dirty {
		return nil
	}

	if l.lag != 0 {
		if _, err := l.store.IncrementBalance(ctx, l.userID, l.lag); err != nil {
			return fmt.Errorf("vidscribe: flush balance: %w", err)
		}
		l.lag = 0
	}

	for len(l.pending) > 0 {
		txn := l.pending[0]
		if err := l.store.AppendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("vidscribe: flush transaction %s: %w", txn.ID, err)
		}
		l.pending = l.pending[1:]
	}

	l.dirty = false
	l.logger.Info("ledger reconciled with remote store", "user_id", l.userID, "balance", l.balance)
	return nil
}

func (l *Ledger) putCache(balance int64) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Put(l.userID, balance); err != nil {
		l.logger.Warn("ledger: cache write failed", "user_id", l.userID, "error", err)
	}
}
