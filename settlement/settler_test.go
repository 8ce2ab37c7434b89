package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
)

type memStore struct {
	mu        sync.Mutex
	processed map[string]bool
	grants    map[billing.Tier]time.Time
}

func newMemStore() *memStore {
	return &memStore{processed: make(map[string]bool), grants: make(map[billing.Tier]time.Time)}
}

func (s *memStore) IsPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[purchaseID], nil
}

func (s *memStore) MarkPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[purchaseID] = true
	return nil
}

func (s *memStore) LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.grants[tier]
	return at, ok, nil
}

func (s *memStore) RecordGrant(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant.Tier] = grant.GrantedAt
	return nil
}

// slowGrantStore stretches the window between reading the grant clock
// and recording the new grant.
type slowGrantStore struct {
	*memStore
	delay time.Duration
}

func (s *slowGrantStore) LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error) {
	time.Sleep(s.delay)
	return s.memStore.LastGrant(ctx, userID, tier)
}

// ledgerStore is a minimal credit.Store for building a real Ledger in
// settlement tests.
type ledgerStore struct {
	mu       sync.Mutex
	balances map[id.UserID]int64
	txns     []*credit.Transaction
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{balances: make(map[id.UserID]int64)}
}

func (s *ledgerStore) Balance(ctx context.Context, userID id.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *ledgerStore) IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += delta
	return s.balances[userID], nil
}

func (s *ledgerStore) SetBalance(ctx context.Context, userID id.UserID, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}

func (s *ledgerStore) AppendTransaction(ctx context.Context, txn *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append(s.txns, txn)
	return nil
}

func (s *ledgerStore) ListTransactions(ctx context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*credit.Transaction, 0, len(s.txns))
	for i := len(s.txns) - 1; i >= 0; i-- {
		out = append(out, s.txns[i])
	}
	return out, nil
}

func newTestSettler(t *testing.T, provider billing.Provider, now func() time.Time) (*Settler, *credit.Ledger, *memStore) {
	t.Helper()
	userID := id.NewUserID()
	ledger := credit.NewLedger(userID, newLedgerStore())
	store := newMemStore()
	settler := NewSettler(userID, ledger, provider, store, WithClock(now))
	return settler, ledger, store
}

func TestSyncGrantsSubscriptionCycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	now := func() time.Time { return clock }

	provider := &billing.StaticProvider{Ent: billing.Entitlement{Tier: billing.TierPro, Active: true}}
	settler, ledger, _ := newTestSettler(t, provider, now)

	summary, err := settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.GrantedCredits != 180 {
		t.Fatalf("granted = %d, want 180", summary.GrantedCredits)
	}
	if ledger.Balance() != 180 {
		t.Fatalf("balance = %d, want 180", ledger.Balance())
	}

	// Re-running within the cycle grants nothing.
	clock = base.Add(27 * 24 * time.Hour)
	summary, err = settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.GrantedCredits != 0 {
		t.Fatalf("mid-cycle grant = %d, want 0", summary.GrantedCredits)
	}

	// A full interval later the next cycle is due.
	clock = base.Add(GrantInterval)
	summary, err = settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.GrantedCredits != 180 {
		t.Fatalf("next-cycle grant = %d, want 180", summary.GrantedCredits)
	}
	if ledger.Balance() != 360 {
		t.Fatalf("balance = %d, want 360", ledger.Balance())
	}
}

func TestConcurrentSyncsGrantOnce(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	provider := &billing.StaticProvider{
		Ent: billing.Entitlement{Tier: billing.TierPro, Active: true},
		Purchases: []billing.Purchase{
			{PurchaseID: "txn-1", ProductID: billing.ProductPackSmall},
		},
	}
	userID := id.NewUserID()
	ledger := credit.NewLedger(userID, newLedgerStore())
	store := &slowGrantStore{memStore: newMemStore(), delay: 20 * time.Millisecond}
	settler := NewSettler(userID, ledger, provider, store, WithClock(now))

	// A user-triggered sync and the background reconciler can overlap;
	// overlapping passes must not double-credit.
	summaries := make(chan *Summary, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := settler.Sync(ctx)
			if err != nil {
				t.Errorf("Sync: %v", err)
				return
			}
			summaries <- summary
		}()
	}
	wg.Wait()
	close(summaries)

	var granted int64
	var purchases int
	for summary := range summaries {
		granted += summary.GrantedCredits
		purchases += summary.SettledPurchases
	}
	if granted != 180 {
		t.Errorf("granted = %d across both passes, want a single 180 grant", granted)
	}
	if purchases != 1 {
		t.Errorf("settled purchases = %d, want 1", purchases)
	}
	if ledger.Balance() != 200 {
		t.Errorf("balance = %d, want 200", ledger.Balance())
	}
}

func TestTierChangeGrantsImmediately(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	provider := &billing.StaticProvider{Ent: billing.Entitlement{Tier: billing.TierStarter, Active: true}}
	settler, ledger, _ := newTestSettler(t, provider, now)

	if _, err := settler.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if ledger.Balance() != 60 {
		t.Fatalf("balance = %d, want 60", ledger.Balance())
	}

	// Upgrading mid-cycle starts a fresh cycle for the new tier.
	provider.Ent = billing.Entitlement{Tier: billing.TierUltimate, Active: true}
	summary, err := settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync after upgrade: %v", err)
	}
	if summary.GrantedCredits != 500 {
		t.Fatalf("upgrade grant = %d, want 500", summary.GrantedCredits)
	}
}

func TestInactiveEntitlementFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	provider := &billing.StaticProvider{Ent: billing.Entitlement{Tier: billing.TierPro, Active: false}}
	settler, ledger, _ := newTestSettler(t, provider, now)

	summary, err := settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Tier != billing.TierFree {
		t.Fatalf("tier = %s, want free", summary.Tier)
	}
	if ledger.Balance() != 5 {
		t.Fatalf("balance = %d, want 5", ledger.Balance())
	}
}

func TestPurchaseSettlementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	provider := &billing.StaticProvider{
		Ent: billing.Entitlement{Tier: billing.TierFree, Active: true},
		Purchases: []billing.Purchase{
			{PurchaseID: "txn-1", ProductID: billing.ProductPackSmall},
			{PurchaseID: "txn-2", ProductID: billing.ProductPackMedium},
		},
	}
	settler, ledger, store := newTestSettler(t, provider, now)

	summary, err := settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.SettledPurchases != 2 || summary.SettledCredits != 95 {
		t.Fatalf("settled = %d purchases / %d credits, want 2 / 95", summary.SettledPurchases, summary.SettledCredits)
	}
	wantBalance := int64(5 + 95) // free grant + packs
	if ledger.Balance() != wantBalance {
		t.Fatalf("balance = %d, want %d", ledger.Balance(), wantBalance)
	}

	// The provider keeps reporting the same purchases; nothing recredits.
	summary, err = settler.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if summary.SettledPurchases != 0 {
		t.Fatalf("re-settled %d purchases", summary.SettledPurchases)
	}
	if ledger.Balance() != wantBalance {
		t.Fatalf("balance drifted to %d", ledger.Balance())
	}
	if !store.processed["txn-1"] || !store.processed["txn-2"] {
		t.Error("purchases not marked processed")
	}
}

func TestUnknownProductLeftUnprocessed(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	provider := &billing.StaticProvider{
		Ent: billing.Entitlement{Tier: billing.TierFree, Active: true},
		Purchases: []billing.Purchase{
			{PurchaseID: "txn-x", ProductID: "com.vidscribe.retired"},
		},
	}
	settler, _, store := newTestSettler(t, provider, now)

	summary, err := settler.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.SettledPurchases != 0 {
		t.Fatalf("settled unknown product")
	}
	if store.processed["txn-x"] {
		t.Error("unknown product marked processed; it must stay retryable")
	}
}
