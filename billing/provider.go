package billing

import "context"

// Provider reads entitlement and purchase state from the payment
// platform. Implementations must be safe for concurrent use.
type Provider interface {
	// Entitlement returns the user's current subscription snapshot.
	// Users with no subscription get an active free-tier entitlement.
	Entitlement(ctx context.Context) (Entitlement, error)

	// UnsettledPurchases returns completed consumable purchases that may
	// not yet have been credited. The settler deduplicates by
	// PurchaseID, so returning already-settled purchases is harmless.
	UnsettledPurchases(ctx context.Context) ([]Purchase, error)
}

// StaticProvider is a fixed-state Provider for tests and offline use.
type StaticProvider struct {
	Ent       Entitlement
	Purchases []Purchase
	Err       error
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) Entitlement(ctx context.Context) (Entitlement, error) {
	if p.Err != nil {
		return Entitlement{}, p.Err
	}
	return p.Ent, nil
}

func (p *StaticProvider) UnsettledPurchases(ctx context.Context) ([]Purchase, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Purchases, nil
}
