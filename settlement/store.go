package settlement

import (
	"context"
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/id"
)

// Store persists the state that makes settlement idempotent: the set of
// processed purchase identifiers and the latest grant time per tier.
type Store interface {
	// IsPurchaseProcessed reports whether the purchase has already been
	// credited.
	IsPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string) (bool, error)

	// MarkPurchaseProcessed records the purchase as credited. Marking an
	// already-processed purchase is a no-op.
	MarkPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string, at time.Time) error

	// LastGrant returns the time of the most recent grant for the tier,
	// or ok=false when the tier has never been granted.
	LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error)

	// RecordGrant persists a grant and advances the tier's grant time.
	RecordGrant(ctx context.Context, grant *Grant) error
}
