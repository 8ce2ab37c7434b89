// Package settlement reconciles payment-platform state into ledger
// credits: recurring subscription grants on a rolling cycle, and
// exactly-once crediting of consumable credit packs.
package settlement

import (
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/id"
)

// GrantInterval is the length of one subscription credit cycle. Grants
// are rolling: the next grant becomes due this long after the previous
// one, independent of calendar months.
const GrantInterval = 28 * 24 * time.Hour

// Grant records one subscription credit grant. The (UserID, Tier) latest
// grant time gates the next cycle, so a tier change grants immediately.
type Grant struct {
	ID        id.GrantID   `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	Tier      billing.Tier `json:"tier"`
	Credits   int64        `json:"credits"`
	GrantedAt time.Time    `json:"granted_at"`
}

// Summary reports what one Sync pass changed.
type Summary struct {
	Tier             billing.Tier
	GrantedCredits   int64
	SettledPurchases int
	SettledCredits   int64
}
