package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	vidscribe "github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	vstore "github.com/vidscribe/vidscribe/store"
	"github.com/vidscribe/vidscribe/user"
)

// Collection name constants.
const (
	colUsers        = "vidscribe_users"
	colBalances     = "vidscribe_balances"
	colTransactions = "vidscribe_transactions"
	colJobs         = "vidscribe_jobs"
	colPurchases    = "vidscribe_purchases"
	colGrants       = "vidscribe_grants"
)

// compile-time interface check
var _ vstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all session collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("vidscribe/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: create user: %w", err)
	}
	return s.SetBalance(ctx, u.ID, u.Balance)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vidscribe.ErrUserNotFound
		}
		return nil, fmt.Errorf("vidscribe/mongo: get user: %w", err)
	}
	return fromUserModel(&m)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: update user: %w", err)
	}
	if res.MatchedCount() == 0 {
		return vidscribe.ErrUserNotFound
	}
	return nil
}

// ==================== Credit Store ====================

func (s *Store) Balance(ctx context.Context, userID id.UserID) (int64, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("vidscribe/mongo: get balance: %w", err)
	}
	return m.Balance, nil
}

// IncrementBalance applies the delta with an atomic $inc upsert, so
// concurrent writers never lose updates.
func (s *Store) IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	res := s.mdb.Collection(colBalances).FindOneAndUpdate(ctx,
		bson.M{"_id": userID.String()},
		bson.M{"$inc": bson.M{"balance": delta}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)

	var m balanceModel
	if err := res.Decode(&m); err != nil {
		return 0, fmt.Errorf("vidscribe/mongo: increment balance: %w", err)
	}
	return m.Balance, nil
}

func (s *Store) SetBalance(ctx context.Context, userID id.UserID, balance int64) error {
	m := &balanceModel{UserID: userID.String(), Balance: balance}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.UserID}).
		SetUpdate(bson.M{"$set": bson.M{"balance": m.Balance}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: set balance: %w", err)
	}
	return nil
}

func (s *Store) AppendTransaction(ctx context.Context, txn *credit.Transaction) error {
	m := toTransactionModel(txn)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	filter := bson.M{"user_id": userID.String()}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	var models []transactionModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("vidscribe/mongo: list transactions: %w", err)
	}

	result := make([]*credit.Transaction, len(models))
	for i := range models {
		txn, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = txn
	}
	return result, nil
}

// ==================== Job Store ====================

func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": m}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": jobID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vidscribe.ErrJobNotFound
		}
		return nil, fmt.Errorf("vidscribe/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

func (s *Store) ListJobs(ctx context.Context, userID id.UserID, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{"user_id": userID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []jobModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("vidscribe/mongo: list jobs: %w", err)
	}

	result := make([]*job.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func (s *Store) ListRefundPending(ctx context.Context, userID id.UserID) ([]*job.Job, error) {
	var models []jobModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id":          userID.String(),
			"status":           bson.M{"$in": []string{string(job.StatusFailed), string(job.StatusCancelled)}},
			"credits_reserved": bson.M{"$gt": 0},
			"credits_refunded": 0,
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("vidscribe/mongo: list refund pending: %w", err)
	}

	result := make([]*job.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

// ==================== Settlement Store ====================

func (s *Store) IsPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string) (bool, error) {
	var m purchaseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": purchaseID, "user_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("vidscribe/mongo: check purchase: %w", err)
	}
	return true, nil
}

func (s *Store) MarkPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string, at time.Time) error {
	m := &purchaseModel{PurchaseID: purchaseID, UserID: userID.String(), ProcessedAt: at}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": purchaseID}).
		SetUpdate(bson.M{"$setOnInsert": m}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: mark purchase processed: %w", err)
	}
	return nil
}

func (s *Store) LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID.String(), "tier": string(tier)}).
		Sort(bson.D{{Key: "granted_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("vidscribe/mongo: last grant: %w", err)
	}
	return m.GrantedAt, true, nil
}

func (s *Store) RecordGrant(ctx context.Context, grant *settlement.Grant) error {
	m := toGrantModel(grant)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("vidscribe/mongo: record grant: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all session collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		colBalances: nil,
		colTransactions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colJobs: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colPurchases: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colGrants: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "tier", Value: 1}, {Key: "granted_at", Value: -1}}},
		},
	}
}
