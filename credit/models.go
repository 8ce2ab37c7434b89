package credit

import (
	"math"
	"time"

	"github.com/vidscribe/vidscribe/id"
)

// Kind is the business reason for a ledger transaction.
type Kind string

const (
	KindPurchase     Kind = "purchase"     // One-time credit pack purchase
	KindSubscription Kind = "subscription" // Monthly subscription grant
	KindDeduction    Kind = "deduction"    // Credits spent on a subtitle job
	KindRefund       Kind = "refund"       // Credits returned after a failed job
	KindBonus        Kind = "bonus"        // Promotional credits
	KindAdjustment   Kind = "adjustment"   // Manual adjustment by support
)

// Transaction is a single immutable entry in a user's credit ledger.
// Amount is signed: positive entries add credits, negative entries spend
// them. BalanceAfter records the balance as of this entry, so the sequence
// of BalanceAfter values is monotone-consistent with application order.
type Transaction struct {
	ID           id.TransactionID `json:"id"`
	UserID       id.UserID        `json:"user_id"`
	Amount       int64            `json:"amount"`
	Kind         Kind             `json:"kind"`
	Reference    string           `json:"reference,omitempty"` // Job ID or billing transaction ID
	Timestamp    time.Time        `json:"timestamp"`
	BalanceAfter int64            `json:"balance_after"`
	Description  string           `json:"description,omitempty"`
}

// IsCredit reports whether this transaction added credits.
func (t *Transaction) IsCredit() bool { return t.Amount > 0 }

// RequiredCredits returns the number of credits a video of the given
// duration costs: one credit per started minute, minimum one credit.
func RequiredCredits(durationSeconds float64) int64 {
	minutes := int64(math.Ceil(durationSeconds / 60.0))
	if minutes < 1 {
		return 1
	}
	return minutes
}
