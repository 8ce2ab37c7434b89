package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	"github.com/vidscribe/vidscribe/user"
)

type Store struct {
	mu sync.RWMutex

	// User storage
	users map[string]*user.User

	// Credit storage
	balances     map[string]int64
	transactions []*credit.Transaction

	// Job storage
	jobs map[string]*job.Job

	// Settlement storage
	processedPurchases map[string]map[string]time.Time
	grants             []*settlement.Grant
}

func New() *Store {
	return &Store{
		users:              make(map[string]*user.User),
		balances:           make(map[string]int64),
		transactions:       make([]*credit.Transaction, 0),
		jobs:               make(map[string]*job.Job),
		processedPurchases: make(map[string]map[string]time.Time),
	}
}

// User Store implementation
func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID.String()]; exists {
		return vidscribe.ErrAlreadyExists
	}
	s.users[u.ID.String()] = u
	s.balances[u.ID.String()] = u.Balance
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID.String()]; ok {
		return u, nil
	}
	return nil, vidscribe.ErrUserNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID.String()]; !ok {
		return vidscribe.ErrUserNotFound
	}
	s.users[u.ID.String()] = u
	return nil
}

// Credit Store implementation
func (s *Store) Balance(_ context.Context, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID.String()], nil
}

func (s *Store) IncrementBalance(_ context.Context, userID id.UserID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[userID.String()] += delta
	return s.balances[userID.String()], nil
}

func (s *Store) SetBalance(_ context.Context, userID id.UserID, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[userID.String()] = balance
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, txn *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, txn)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Transaction, 0)
	for _, txn := range s.transactions {
		if txn.UserID != userID {
			continue
		}
		if opts.Kind != "" && txn.Kind != opts.Kind {
			continue
		}
		result = append(result, txn)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Job Store implementation
func (s *Store) SaveJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := *j
	s.jobs[j.ID.String()] = &snapshot
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if j, ok := s.jobs[jobID.String()]; ok {
		return j, nil
	}
	return nil, vidscribe.ErrJobNotFound
}

func (s *Store) ListJobs(_ context.Context, userID id.UserID, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if j.UserID != userID {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		result = append(result, j)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListRefundPending(_ context.Context, userID id.UserID) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if j.UserID == userID && j.NeedsRefund() {
			result = append(result, j)
		}
	}
	return result, nil
}

// Settlement Store implementation
func (s *Store) IsPurchaseProcessed(_ context.Context, userID id.UserID, purchaseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processedPurchases[userID.String()][purchaseID]
	return ok, nil
}

func (s *Store) MarkPurchaseProcessed(_ context.Context, userID id.UserID, purchaseID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.processedPurchases[userID.String()]
	if !ok {
		set = make(map[string]time.Time)
		s.processedPurchases[userID.String()] = set
	}
	set[purchaseID] = at
	return nil
}

func (s *Store) LastGrant(_ context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	var found bool
	for _, g := range s.grants {
		if g.UserID == userID && g.Tier == tier && g.GrantedAt.After(latest) {
			latest = g.GrantedAt
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) RecordGrant(_ context.Context, grant *settlement.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants = append(s.grants, grant)
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
