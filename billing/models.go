// Package billing defines the subscription tiers and consumable credit
// products, and the provider interface through which entitlement and
// purchase state is read from the payment platform.
package billing

import (
	"time"

	"github.com/vidscribe/vidscribe/types"
)

// Tier identifies a subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierUltimate Tier = "ultimate"
)

// MonthlyCredits returns the credit grant for one billing cycle of the
// tier. Unknown tiers grant the free allowance.
func (t Tier) MonthlyCredits() int64 {
	switch t {
	case TierStarter:
		return 60
	case TierPro:
		return 180
	case TierUltimate:
		return 500
	default:
		return 5
	}
}

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierUltimate:
		return true
	}
	return false
}

// ParseTier maps a product identifier suffix or raw string to a Tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	if t.Valid() {
		return t, true
	}
	return TierFree, false
}

// ProductKind distinguishes recurring subscriptions from consumable
// credit packs.
type ProductKind string

const (
	ProductSubscription ProductKind = "subscription"
	ProductCreditPack   ProductKind = "credit_pack"
)

// Product is one purchasable item in the catalog.
type Product struct {
	ID      string      `json:"id"`
	Kind    ProductKind `json:"kind"`
	Name    string      `json:"name"`
	Price   types.Money `json:"price"`
	Credits int64       `json:"credits"` // per pack, or per cycle for subscriptions
	Tier    Tier        `json:"tier,omitempty"`
}

// Entitlement is a snapshot of the user's active subscription as
// reported by the payment platform.
type Entitlement struct {
	Tier      Tier      `json:"tier"`
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Purchase is one completed consumable purchase as reported by the
// payment platform. PurchaseID is the platform's stable transaction
// identifier and is the deduplication key for settlement.
type Purchase struct {
	PurchaseID  string    `json:"purchase_id"`
	ProductID   string    `json:"product_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}
