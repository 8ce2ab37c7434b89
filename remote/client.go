package remote

import (
	"context"
	"io"
)

// Client is the rendering-service API surface the job orchestrator
// depends on. Implementations must be safe for concurrent use.
type Client interface {
	// Upload pushes the file to service storage via the signed-URL
	// handshake and returns the hosted file URL to submit against.
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error)

	// Submit queues a subtitle request for an uploaded file.
	Submit(ctx context.Context, req SubmitRequest) (Submission, error)

	// Status returns the current phase of a request.
	Status(ctx context.Context, requestID string) (Status, error)

	// Result fetches the output of a completed request.
	Result(ctx context.Context, requestID string) (Result, error)

	// Cancel asks the service to abandon a queued or running request.
	// Cancelling a terminal request is not an error.
	Cancel(ctx context.Context, requestID string) error

	// Download streams the result artifact at url to w and returns the
	// number of bytes written.
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}
