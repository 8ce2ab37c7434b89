// Package user defines the user account record and its usage counters.
package user

import (
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/types"
)

// SignupCredits is the balance a freshly created account starts with.
const SignupCredits int64 = 5

// User is one account. Balance is maintained by the credit ledger; the
// counters track lifetime usage for display and support.
type User struct {
	types.Entity

	ID      id.UserID    `json:"id"`
	Email   string       `json:"email,omitempty"`
	Tier    billing.Tier `json:"tier"`
	Balance int64        `json:"balance"`

	JobsCompleted    int64   `json:"jobs_completed"`
	SecondsCaptioned float64 `json:"seconds_captioned"`
	CreditsSpent     int64   `json:"credits_spent"`
}

// New creates an account with the signup grant and free tier.
func New(userID id.UserID, email string) *User {
	return &User{
		Entity:  types.NewEntity(),
		ID:      userID,
		Email:   email,
		Tier:    billing.TierFree,
		Balance: SignupCredits,
	}
}

// RecordJob folds one completed job into the usage counters.
func (u *User) RecordJob(durationSeconds float64, creditsSpent int64) {
	u.JobsCompleted++
	u.SecondsCaptioned += durationSeconds
	u.CreditsSpent += creditsSpent
	u.Touch()
}
