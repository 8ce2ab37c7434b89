// Package remote is the client for the hosted subtitle rendering
// service: file upload via a signed-URL handshake, request submission,
// status polling, result retrieval, and cancellation.
package remote

// Phase is the service-side lifecycle of a submitted request.
type Phase string

const (
	PhaseQueued     Phase = "IN_QUEUE"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseCompleted  Phase = "COMPLETED"
	PhaseFailed     Phase = "FAILED"
	PhaseCancelled  Phase = "CANCELLED"
)

// Terminal reports whether no further transition can occur.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// SubtitleOptions are the rendering parameters forwarded with a
// submission.
type SubtitleOptions struct {
	FontName       string `json:"font_name,omitempty"`
	FontSize       int    `json:"font_size,omitempty"`
	TextColor      string `json:"txt_color,omitempty"`
	HighlightColor string `json:"highlight_color,omitempty"`
	Position       string `json:"position,omitempty"`
	Language       string `json:"language,omitempty"`
}

// SubmitRequest asks the service to subtitle an already-uploaded file.
type SubmitRequest struct {
	VideoURL string          `json:"video_url"`
	Options  SubtitleOptions `json:"-"`
}

// Submission identifies an accepted request.
type Submission struct {
	RequestID string `json:"request_id"`
}

// Status is one poll observation.
type Status struct {
	Phase         Phase  `json:"status"`
	QueuePosition int    `json:"queue_position,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Result is the output of a completed request. Transcript and
// SubtitleCount are absent on older render models.
type Result struct {
	VideoURL      string `json:"video_url"`
	Transcript    string `json:"transcript,omitempty"`
	SubtitleCount int    `json:"subtitle_count,omitempty"`
}
