package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	vidscribe "github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	"github.com/vidscribe/vidscribe/user"
)

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := id.NewUserID()

	if _, err := s.GetUser(ctx, userID); !errors.Is(err, vidscribe.ErrUserNotFound) {
		t.Fatalf("GetUser on empty store = %v, want ErrUserNotFound", err)
	}

	u := user.New(userID, "test@example.com")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(ctx, u); !errors.Is(err, vidscribe.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateUser = %v, want ErrAlreadyExists", err)
	}

	// CreateUser seeds the balance from the user record.
	bal, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if bal != user.SignupCredits {
		t.Fatalf("Balance() = %d, want %d", bal, user.SignupCredits)
	}

	u.RecordJob(125, 3)
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if got.JobsCompleted != 1 || got.CreditsSpent != 3 {
		t.Fatalf("user totals = (%d jobs, %d spent), want (1, 3)", got.JobsCompleted, got.CreditsSpent)
	}
}

func TestBalanceIncrementIsSigned(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := id.NewUserID()

	if _, err := s.IncrementBalance(ctx, userID, 10); err != nil {
		t.Fatal(err)
	}
	bal, err := s.IncrementBalance(ctx, userID, -4)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 6 {
		t.Fatalf("IncrementBalance = %d, want 6", bal)
	}
}

func TestListTransactionsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := id.NewUserID()
	base := time.Now()

	kinds := []credit.Kind{
		credit.KindBonus,
		credit.KindDeduction,
		credit.KindDeduction,
		credit.KindRefund,
	}
	for i, kind := range kinds {
		err := s.AppendTransaction(ctx, &credit.Transaction{
			ID:        id.NewTransactionID(),
			UserID:    userID,
			Amount:    1,
			Kind:      kind,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	// Another user's entry must not leak into the listing.
	_ = s.AppendTransaction(ctx, &credit.Transaction{
		ID:        id.NewTransactionID(),
		UserID:    id.NewUserID(),
		Amount:    1,
		Kind:      credit.KindBonus,
		Timestamp: base,
	})

	all, err := s.ListTransactions(ctx, userID, credit.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4", len(all))
	}
	if !all[0].Timestamp.After(all[len(all)-1].Timestamp) {
		t.Fatal("transactions should be ordered newest first")
	}

	deductions, err := s.ListTransactions(ctx, userID, credit.ListOpts{Kind: credit.KindDeduction})
	if err != nil {
		t.Fatal(err)
	}
	if len(deductions) != 2 {
		t.Fatalf("len(deductions) = %d, want 2", len(deductions))
	}

	page, err := s.ListTransactions(ctx, userID, credit.ListOpts{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Fatalf("len(page) = %d, want 1", len(page))
	}
}

func TestListRefundPending(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := id.NewUserID()

	owed := &job.Job{ID: id.NewJobID(), UserID: userID, Status: job.StatusFailed, CreditsReserved: 3}
	settled := &job.Job{ID: id.NewJobID(), UserID: userID, Status: job.StatusRefunded, CreditsReserved: 2, CreditsRefunded: 2}
	completed := &job.Job{ID: id.NewJobID(), UserID: userID, Status: job.StatusCompleted, CreditsReserved: 1}
	for _, j := range []*job.Job{owed, settled, completed} {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := s.ListRefundPending(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != owed.ID {
		t.Fatalf("ListRefundPending = %v, want just the failed unrefunded job", pending)
	}
}

func TestSettlementBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := id.NewUserID()

	processed, err := s.IsPurchaseProcessed(ctx, userID, "txn_1")
	if err != nil {
		t.Fatal(err)
	}
	if processed {
		t.Fatal("fresh purchase should not be processed")
	}
	if err := s.MarkPurchaseProcessed(ctx, userID, "txn_1", time.Now()); err != nil {
		t.Fatal(err)
	}
	// Marking twice is a no-op.
	if err := s.MarkPurchaseProcessed(ctx, userID, "txn_1", time.Now()); err != nil {
		t.Fatal(err)
	}
	processed, err = s.IsPurchaseProcessed(ctx, userID, "txn_1")
	if err != nil {
		t.Fatal(err)
	}
	if !processed {
		t.Fatal("marked purchase should be processed")
	}

	if _, ok, err := s.LastGrant(ctx, userID, billing.TierPro); err != nil || ok {
		t.Fatalf("LastGrant on empty store = (%v, %v), want ok=false", ok, err)
	}

	first := time.Now().Add(-48 * time.Hour)
	second := time.Now()
	for _, at := range []time.Time{first, second} {
		err := s.RecordGrant(ctx, &settlement.Grant{
			ID:        id.NewGrantID(),
			UserID:    userID,
			Tier:      billing.TierPro,
			Credits:   billing.TierPro.MonthlyCredits(),
			GrantedAt: at,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	last, ok, err := s.LastGrant(ctx, userID, billing.TierPro)
	if err != nil || !ok {
		t.Fatalf("LastGrant = (%v, %v), want ok=true", ok, err)
	}
	if !last.Equal(second) {
		t.Fatalf("LastGrant = %v, want the most recent grant %v", last, second)
	}

	// A different tier has its own grant clock.
	if _, ok, _ := s.LastGrant(ctx, userID, billing.TierStarter); ok {
		t.Fatal("starter tier should have no grants")
	}
}
