package mongo

import (
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

	ID               string    `grove:"id,pk"             bson:"_id"`
	Email            string    `grove:"email"             bson:"email"`
	Tier             string    `grove:"tier"              bson:"tier"`
	Balance          int64     `grove:"balance"           bson:"balance"`
	JobsCompleted    int64     `grove:"jobs_completed"    bson:"jobs_completed"`
	SecondsCaptioned float64   `grove:"seconds_captioned" bson:"seconds_captioned"`
	CreditsSpent     int64     `grove:"credits_spent"     bson:"credits_spent"`
	CreatedAt        time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
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

	UserID  string `grove:"user_id,pk" bson:"_id"`
	Balance int64  `grove:"balance"    bson:"balance"`
}

type transactionModel struct {
	grove.BaseModel `grove:"table:vidscribe_transactions"`

	ID           string    `grove:"id,pk"         bson:"_id"`
	UserID       string    `grove:"user_id"       bson:"user_id"`
	Amount       int64     `grove:"amount"        bson:"amount"`
	Kind         string    `grove:"kind"          bson:"kind"`
	Reference    string    `grove:"reference"     bson:"reference"`
	Timestamp    time.Time `grove:"timestamp"     bson:"timestamp"`
	BalanceAfter int64     `grove:"balance_after" bson:"balance_after"`
	Description  string    `grove:"description"   bson:"description"`
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

	ID              string       `grove:"id,pk"            bson:"_id"`
	UserID          string       `grove:"user_id"          bson:"user_id"`
	SourcePath      string       `grove:"source_path"      bson:"source_path"`
	Status          string       `grove:"status"           bson:"status"`
	Options         optionsModel `grove:"options"          bson:"options"`
	DurationSeconds float64      `grove:"duration_seconds" bson:"duration_seconds"`
	SizeBytes       int64        `grove:"size_bytes"       bson:"size_bytes"`
	RequestID       string       `grove:"request_id"       bson:"request_id"`
	StartedAt       time.Time    `grove:"started_at"       bson:"started_at"`
	CompletedAt     time.Time    `grove:"completed_at"     bson:"completed_at"`
	CreditsReserved int64        `grove:"credits_reserved" bson:"credits_reserved"`
	CreditsRefunded int64        `grove:"credits_refunded" bson:"credits_refunded"`
	ResultPath      string       `grove:"result_path"      bson:"result_path"`
	Transcription   string       `grove:"transcription"    bson:"transcription"`
	SubtitleCount   int          `grove:"subtitle_count"   bson:"subtitle_count"`
	RetryCount      int          `grove:"retry_count"      bson:"retry_count"`
	MaxRetries      int          `grove:"max_retries"      bson:"max_retries"`
	FailureReason   string       `grove:"failure_reason"   bson:"failure_reason"`
	CreatedAt       time.Time    `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time    `grove:"updated_at"       bson:"updated_at"`
}

type optionsModel struct {
	FontName       string `bson:"font_name"`
	FontSize       int    `bson:"font_size"`
	TextColor      string `bson:"text_color"`
	HighlightColor string `bson:"highlight_color"`
	Position       string `bson:"position"`
	Language       string `bson:"language,omitempty"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:         j.ID.String(),
		UserID:     j.UserID.String(),
		SourcePath: j.SourcePath,
		Status:     string(j.Status),
		Options: optionsModel{
			FontName:       j.Options.FontName,
			FontSize:       j.Options.FontSize,
			TextColor:      j.Options.TextColor,
			HighlightColor: j.Options.HighlightColor,
			Position:       j.Options.Position,
			Language:       j.Options.Language,
		},
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
	return &job.Job{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         jobID,
		UserID:     userID,
		SourcePath: m.SourcePath,
		Status:     job.Status(m.Status),
		Options: job.Options{
			FontName:       m.Options.FontName,
			FontSize:       m.Options.FontSize,
			TextColor:      m.Options.TextColor,
			HighlightColor: m.Options.HighlightColor,
			Position:       m.Options.Position,
			Language:       m.Options.Language,
		},
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

	PurchaseID  string    `grove:"purchase_id,pk" bson:"_id"`
	UserID      string    `grove:"user_id"        bson:"user_id"`
	ProcessedAt time.Time `grove:"processed_at"   bson:"processed_at"`
}

type grantModel struct {
	grove.BaseModel `grove:"table:vidscribe_grants"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Tier      string    `grove:"tier"       bson:"tier"`
	Credits   int64     `grove:"credits"    bson:"credits"`
	GrantedAt time.Time `grove:"granted_at" bson:"granted_at"`
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
