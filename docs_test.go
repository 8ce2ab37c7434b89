package vidscribe_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/identity"
	"github.com/vidscribe/vidscribe/store/memory"
	"github.com/vidscribe/vidscribe/types"
	"github.com/vidscribe/vidscribe/user"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use SQLite or Postgres in production)
		st := memory.New()

		userID := id.NewUserID()

		// Initialize the session engine
		s := vidscribe.New(st,
			vidscribe.WithLogger(slog.Default()),
			vidscribe.WithIdentity(&identity.Static{ID: userID}),
			vidscribe.WithBillingProvider(&billing.StaticProvider{
				Ent: billing.Entitlement{Tier: billing.TierPro, Active: true},
				Purchases: []billing.Purchase{
					{PurchaseID: "txn_demo_1", ProductID: billing.ProductPackSmall, PurchasedAt: time.Now()},
				},
			}),
			vidscribe.WithReconcileInterval(time.Minute),
		)

		// Start the engine
		ctx := context.Background()
		if err := s.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer s.Stop()

		// A new user starts with the signup grant
		if got := s.Balance(); got != user.SignupCredits {
			t.Fatalf("Balance() = %d, want %d", got, user.SignupCredits)
		}

		// Settle billing: pro tier grant plus the small credit pack
		summary, err := s.SyncSettlement(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if summary.GrantedCredits != billing.TierPro.MonthlyCredits() {
			t.Fatalf("GrantedCredits = %d, want %d", summary.GrantedCredits, billing.TierPro.MonthlyCredits())
		}
		if summary.SettledPurchases != 1 {
			t.Fatalf("SettledPurchases = %d, want 1", summary.SettledPurchases)
		}

		// 5 signup + 180 pro grant + 20 pack
		want := user.SignupCredits + billing.TierPro.MonthlyCredits() + 20
		if got := s.Balance(); got != want {
			t.Fatalf("Balance() = %d, want %d", got, want)
		}

		// A 10-minute video costs 10 credits
		if !s.HasSufficientCredits(600) {
			t.Fatal("expected sufficient credits for a 10-minute video")
		}

		// Inspect the ledger history
		txns, err := s.Transactions(ctx, credit.ListOpts{Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		for _, txn := range txns {
			log.Printf("%s %+d -> %d\n", txn.Kind, txn.Amount, txn.BalanceAfter)
		}
		if len(txns) != 3 {
			t.Fatalf("len(txns) = %d, want 3", len(txns))
		}
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(499)    // $4.99, the small credit pack
		_ = types.EUR(999)    // €9.99
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00
		_ = m1.Divide(2)   // $0.50

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})

	// Test credit cost examples
	t.Run("RequiredCreditsExamples", func(t *testing.T) {
		_ = credit.RequiredCredits(59)   // 1 credit
		_ = credit.RequiredCredits(61)   // 2 credits
		_ = credit.RequiredCredits(3600) // 60 credits

		if credit.RequiredCredits(125) != 3 {
			t.Fatal("a 2m05s video costs 3 credits")
		}
	})
}
