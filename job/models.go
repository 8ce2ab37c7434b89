// Package job runs the subtitle job lifecycle: validate the local
// video, reserve credits, upload, submit to the rendering service,
// poll, download the result, and settle credits on every outcome.
package job

import (
	"time"

	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/types"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusValidating  Status = "validating"
	StatusUploading   Status = "uploading"
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
)

// IsTerminal reports whether the job can no longer transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsActive reports whether the job currently occupies the pipeline.
func (s Status) IsActive() bool {
	return s != StatusIdle && !s.IsTerminal()
}

// Options are the subtitle rendering parameters for one job.
type Options struct {
	FontName       string `json:"font_name"`
	FontSize       int    `json:"font_size"`
	TextColor      string `json:"text_color"`
	HighlightColor string `json:"highlight_color"`
	Position       string `json:"position"`
	Language       string `json:"language,omitempty"`
}

// DefaultOptions returns the stock rendering style.
func DefaultOptions() Options {
	return Options{
		FontName:       "Montserrat",
		FontSize:       100,
		TextColor:      "#FFFFFF",
		HighlightColor: "#A855F7",
		Position:       "bottom",
	}
}

// Job is one subtitle request from intake to settlement.
type Job struct {
	types.Entity

	ID         id.JobID  `json:"id"`
	UserID     id.UserID `json:"user_id"`
	SourcePath string    `json:"source_path"`
	Status     Status    `json:"status"`
	Options    Options   `json:"options"`

	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`

	// RequestID is set once the rendering service accepts the job.
	RequestID string `json:"request_id,omitempty"`

	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	CreditsReserved int64 `json:"credits_reserved"`
	CreditsRefunded int64 `json:"credits_refunded"`

	ResultPath    string `json:"result_path,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	SubtitleCount int    `json:"subtitle_count,omitempty"`

	// RetryCount is how many times the whole pipeline re-entered after
	// a transient failure; MaxRetries bounds it.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	FailureReason string `json:"failure_reason,omitempty"`
}

// NeedsRefund reports whether reserved credits are still owed back: the
// job ended without producing a result and nothing was refunded yet.
func (j *Job) NeedsRefund() bool {
	if j.Status == StatusCompleted || !j.Status.IsTerminal() {
		return false
	}
	return j.CreditsReserved > 0 && j.CreditsRefunded == 0
}
