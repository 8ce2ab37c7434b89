package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
	"github.com/vidscribe/vidscribe/types"
	"github.com/vidscribe/vidscribe/user"
)

// ==================== User models ====================

type userModel struct {
	grove.BaseModel `grove:"table:vidscribe_users"`

	ID               string    `grove:"id,pk"`
	Email            string    `grove:"email"`
	Tier             string    `grove:"tier"`
	Balance          int64     `grove:"balance"`
	JobsCompleted    int64     `grove:"jobs_completed"`
	SecondsCaptioned float64   `grove:"seconds_captioned"`
	CreditsSpent     int64     `grove:"credits_spent"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:               u.ID.String(),
		Email:            u.Email,
		Tier:             string(u.Tier),
		Balance:          u.Balance,
		JobsCompleted:    u.JobsCompleted,
		SecondsCaptioned: u.SecondsCaptioned,
		CreditsSpent:     u.CreditsSpent,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) (*user.User, error) {
	userID, err := id.ParseUserID(m.ID)
	if err != nil {
		return nil, err
	}
	return &user.User{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               userID,
		Email:            m.Email,
		Tier:             billing.Tier(m.Tier),
		Balance:          m.Balance,
		JobsCompleted:    m.JobsCompleted,
		SecondsCaptioned: m.SecondsCaptioned,
		CreditsSpent:     m.CreditsSpent,
	}, nil
}

// ==================== Credit models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:vidscribe_balances"`

	UserID  string `grove:"user_id,pk"`
	Balance int64  `grove:"balance"`
}

type transactionModel struct {
	grove.BaseModel `grove:"table:vidscribe_transactions"`

	ID           string    `grove:"id,pk"`
	UserID       string    `grove:"user_id"`
	Amount       int64     `grove:"amount"`
	Kind         string    `grove:"kind"`
	Reference    string    `grove:"reference"`
	Timestamp    time.Time `grove:"timestamp"`
	BalanceAfter int64     `grove:"balance_after"`
	Description  string    `grove:"description"`
}

func toTransactionModel(t *credit.Transaction) *transactionModel {
	return &transactionModel{
		ID:           t.ID.String(),
		UserID:       t.UserID.String(),
		Amount:       t.Amount,
		Kind:         string(t.Kind),
		Reference:    t.Reference,
		Timestamp:    t.Timestamp,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
	}
}

func fromTransactionModel(m *transactionModel) (*credit.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}
	return &credit.Transaction{
		ID:           txnID,
		UserID:       userID,
		Amount:       m.Amount,
		Kind:         credit.Kind(m.Kind),
		Reference:    m.Reference,
		Timestamp:    m.Timestamp,
		BalanceAfter: m.BalanceAfter,
		Description:  m.Description,
	}, nil
}

// ==================== Job models ====================

type jobModel struct {
	grove.BaseModel `grove:"table:vidscribe_jobs"`

	ID              string          `grove:"id,pk"`
	UserID          string          `grove:"user_id"`
	SourcePath      string          `grove:"source_path"`
	Status          string          `grove:"status"`
	Options         json.RawMessage `grove:"options,type:jsonb"`
	DurationSeconds float64         `grove:"duration_seconds"`
	SizeBytes       int64           `grove:"size_bytes"`
	RequestID       string          `grove:"request_id"`
	StartedAt       time.Time       `grove:"started_at"`
	CompletedAt     time.Time       `grove:"completed_at"`
	CreditsReserved int64           `grove:"credits_reserved"`
	CreditsRefunded int64           `grove:"credits_refunded"`
	ResultPath      string          `grove:"result_path"`
	Transcription   string          `grove:"transcription"`
	SubtitleCount   int             `grove:"subtitle_count"`
	RetryCount      int             `grove:"retry_count"`
	MaxRetries      int             `grove:"max_retries"`
	FailureReason   string          `grove:"failure_reason"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	options, _ := json.Marshal(j.Options) //nolint:errcheck // best-effort

	return &jobModel{
		ID:              j.ID.String(),
		UserID:          j.UserID.String(),
		SourcePath:      j.SourcePath,
		Status:          string(j.Status),
		Options:         options,
		DurationSeconds: j.DurationSeconds,
		SizeBytes:       j.SizeBytes,
		RequestID:       j.RequestID,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		CreditsReserved: j.CreditsReserved,
		CreditsRefunded: j.CreditsRefunded,
		ResultPath:      j.ResultPath,
		Transcription:   j.Transcription,
		SubtitleCount:   j.SubtitleCount,
		RetryCount:      j.RetryCount,
		MaxRetries:      j.MaxRetries,
		FailureReason:   j.FailureReason,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	var options job.Options
	if len(m.Options) > 0 {
		_ = json.Unmarshal(m.Options, &options) //nolint:errcheck // best-effort
	}

	return &job.Job{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              jobID,
		UserID:          userID,
		SourcePath:      m.SourcePath,
		Status:          job.Status(m.Status),
		Options:         options,
		DurationSeconds: m.DurationSeconds,
		SizeBytes:       m.SizeBytes,
		RequestID:       m.RequestID,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		CreditsReserved: m.CreditsReserved,
		CreditsRefunded: m.CreditsRefunded,
		ResultPath:      m.ResultPath,
		Transcription:   m.Transcription,
		SubtitleCount:   m.SubtitleCount,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		FailureReason:   m.FailureReason,
	}, nil
}

// ==================== Settlement models ====================

type purchaseModel struct {
	grove.BaseModel `grove:"table:vidscribe_purchases"`

	PurchaseID  string    `grove:"purchase_id,pk"`
	UserID      string    `grove:"user_id"`
	ProcessedAt time.Time `grove:"processed_at"`
}

type grantModel struct {
	grove.BaseModel `grove:"table:vidscribe_grants"`

	ID        string    `grove:"id,pk"`
	UserID    string    `grove:"user_id"`
	Tier      string    `grove:"tier"`
	Credits   int64     `grove:"credits"`
	GrantedAt time.Time `grove:"granted_at"`
}

func toGrantModel(g *settlement.Grant) *grantModel {
	return &grantModel{
		ID:        g.ID.String(),
		UserID:    g.UserID.String(),
		Tier:      string(g.Tier),
		Credits:   g.Credits,
		GrantedAt: g.GrantedAt,
	}
}
