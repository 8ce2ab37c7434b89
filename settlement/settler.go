package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
)

// GrantHook observes applied subscription grants.
type GrantHook func(grant *Grant)

// Settler applies payment-platform state to a user's ledger. Sync is
// idempotent: re-running it never double-credits a purchase or a grant
// cycle, so it is safe to call on every launch, foreground, and
// post-purchase. Passes are serialized; a concurrent Sync waits for
// the running one to finish.
type Settler struct {
	userID   id.UserID
	ledger   *credit.Ledger
	provider billing.Provider
	store    Store
	logger   *slog.Logger
	hook     GrantHook
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Settler.
type Option func(*Settler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settler) { s.logger = logger }
}

// WithGrantHook registers an observer for subscription grants.
func WithGrantHook(hook GrantHook) Option {
	return func(s *Settler) { s.hook = hook }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Settler) { s.now = now }
}

// NewSettler creates a settler for one user.
func NewSettler(userID id.UserID, ledger *credit.Ledger, provider billing.Provider, store Store, opts ...Option) *Settler {
	s := &Settler{
		userID:   userID,
		ledger:   ledger,
		provider: provider,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one full settlement pass: grant the subscription cycle if
// due, then credit any unsettled consumable purchases. Partial failure
// is safe; whatever did not complete is retried on the next pass.
func (s *Settler) Sync(ctx context.Context) (*Summary, error) {
	// One pass at a time: overlapping passes would both observe the
	// same last-grant and unprocessed-purchase state and double-credit.
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &Summary{}

	ent, err := s.provider.Entitlement(ctx)
	if err != nil {
		return summary, fmt.Errorf("vidscribe: read entitlement: %w", err)
	}
	tier := ent.Tier
	if !ent.Active || !tier.Valid() {
		tier = billing.TierFree
	}
	summary.Tier = tier

	granted, err := s.grantCycle(ctx, tier)
	if err != nil {
		return summary, err
	}
	summary.GrantedCredits = granted

	settled, credits, err := s.settlePurchases(ctx)
	summary.SettledPurchases = settled
	summary.SettledCredits = credits
	return summary, err
}

// grantCycle credits the tier's monthly allowance when the previous
// grant for that tier is at least one GrantInterval old, or has never
// happened. The grant record is written only after the credit lands, so
// a failed credit leaves the cycle due.
func (s *Settler) grantCycle(ctx context.Context, tier billing.Tier) (int64, error) {
	last, ok, err := s.store.LastGrant(ctx, s.userID, tier)
	if err != nil {
		return 0, fmt.Errorf("vidscribe: read last grant: %w", err)
	}
	now := s.now()
	if ok && now.Sub(last) < GrantInterval {
		return 0, nil
	}

	credits := tier.MonthlyCredits()
	ref := "grant:" + string(tier)
	if _, err := s.ledger.Credit(ctx, credits, credit.KindSubscription, ref,
		fmt.Sprintf("%s tier credits", tier)); err != nil {
		return 0, fmt.Errorf("vidscribe: grant credits: %w", err)
	}

	grant := &Grant{
		ID:        id.NewGrantID(),
		UserID:    s.userID,
		Tier:      tier,
		Credits:   credits,
		GrantedAt: now,
	}
	if err := s.store.RecordGrant(ctx, grant); err != nil {
		// The credit landed; losing the grant record risks a duplicate
		// next cycle but must not fail the sync.
		s.logger.Warn("settlement: grant record failed", "user_id", s.userID, "tier", tier, "error", err)
	}
	if s.hook != nil {
		s.hook(grant)
	}
	s.logger.Info("subscription cycle granted", "user_id", s.userID, "tier", tier, "credits", credits)
	return credits, nil
}

// settlePurchases credits each unprocessed consumable purchase exactly
// once, keyed by the platform's purchase identifier.
func (s *Settler) settlePurchases(ctx context.Context) (int, int64, error) {
	purchases, err := s.provider.UnsettledPurchases(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("vidscribe: read purchases: %w", err)
	}

	var count int
	var total int64
	for _, p := range purchases {
		processed, err := s.store.IsPurchaseProcessed(ctx, s.userID, p.PurchaseID)
		if err != nil {
			return count, total, fmt.Errorf("vidscribe: check purchase %s: %w", p.PurchaseID, err)
		}
		if processed {
			continue
		}

		credits, ok := billing.PackCredits(p.ProductID)
		if !ok {
			s.logger.Warn("settlement: skipping purchase", "purchase_id", p.PurchaseID,
				"product_id", p.ProductID, "error", ErrUnknownProduct)
			continue
		}

		ref := "purchase:" + p.PurchaseID
		if _, err := s.ledger.Credit(ctx, credits, credit.KindPurchase, ref,
			fmt.Sprintf("%d credit pack", credits)); err != nil {
			// Leave unprocessed; the next sync retries.
			return count, total, fmt.Errorf("vidscribe: credit purchase %s: %w", p.PurchaseID, err)
		}
		if err := s.store.MarkPurchaseProcessed(ctx, s.userID, p.PurchaseID, s.now()); err != nil {
			return count, total, fmt.Errorf("vidscribe: mark purchase %s: %w", p.PurchaseID, err)
		}
		count++
		total += credits
		s.logger.Info("purchase settled", "user_id", s.userID, "purchase_id", p.PurchaseID, "credits", credits)
	}
	return count, total, nil
}
