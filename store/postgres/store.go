package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	vidscribe "github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	vstore "github.com/vidscribe/vidscribe/store"
	"github.com/vidscribe/vidscribe/user"
)

// compile-time interface check
var _ vstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("vidscribe/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("vidscribe/postgres: migration failed: %w", err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return err
	}
	return s.SetBalance(ctx, u.ID, u.Balance)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vidscribe.ErrUserNotFound
		}
		return nil, err
	}
	return fromUserModel(m)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return vidscribe.ErrUserNotFound
	}
	return nil
}

// ==================== Credit Store ====================

func (s *Store) Balance(ctx context.Context, userID id.UserID) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(
			(SELECT balance FROM vidscribe_balances WHERE user_id = ?), 0)
	`, userID.String()).Scan(ctx, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// IncrementBalance applies the delta atomically via an upsert, so
// concurrent writers never lose updates.
func (s *Store) IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		INSERT INTO vidscribe_balances (user_id, balance) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET balance = balance + excluded.balance
		RETURNING balance
	`, userID.String(), delta).Scan(ctx, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, userID id.UserID, balance int64) error {
	_, err := s.pg.NewRaw(`
		INSERT INTO vidscribe_balances (user_id, balance) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance
	`, userID.String(), balance).Exec(ctx)
	return err
}

func (s *Store) AppendTransaction(ctx context.Context, txn *credit.Transaction) error {
	m := toTransactionModel(txn)
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	var models []transactionModel
	q := s.pg.NewSelect(&models).Where("user_id = ?", userID.String())

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.pg.NewInsert(m).
		OnConflict(`(id) DO UPDATE SET
			status = excluded.status,
			options = excluded.options,
			duration_seconds = excluded.duration_seconds,
			size_bytes = excluded.size_bytes,
			request_id = excluded.request_id,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			credits_reserved = excluded.credits_reserved,
			credits_refunded = excluded.credits_refunded,
			result_path = excluded.result_path,
			transcription = excluded.transcription,
			subtitle_count = excluded.subtitle_count,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at`).
		Exec(ctx)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.pg.NewSelect(m).
		Where("id = ?", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vidscribe.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) ListJobs(ctx context.Context, userID id.UserID, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.pg.NewSelect(&models).Where("user_id = ?", userID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	err := s.pg.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		Where("status IN (?, ?)", string(job.StatusFailed), string(job.StatusCancelled)).
		Where("credits_reserved > 0").
		Where("credits_refunded = 0").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	m := new(purchaseModel)
	err := s.pg.NewSelect(m).
		Where("purchase_id = ?", purchaseID).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) MarkPurchaseProcessed(ctx context.Context, userID id.UserID, purchaseID string, at time.Time) error {
	m := &purchaseModel{
		PurchaseID:  purchaseID,
		UserID:      userID.String(),
		ProcessedAt: at,
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(purchase_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) LastGrant(ctx context.Context, userID id.UserID, tier billing.Tier) (time.Time, bool, error) {
	m := new(grantModel)
	err := s.pg.NewSelect(m).
		Where("user_id = ?", userID.String()).
		Where("tier = ?", string(tier)).
		OrderExpr("granted_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return m.GrantedAt, true, nil
}

func (s *Store) RecordGrant(ctx context.Context, grant *settlement.Grant) error {
	m := toGrantModel(grant)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
