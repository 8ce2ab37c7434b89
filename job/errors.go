package job

import (
	"errors"
	"fmt"
)

var (
	// ErrJobInFlight is returned by Submit while another job is active.
	ErrJobInFlight = errors.New("vidscribe: a job is already in flight")

	// ErrVideoNotFound is returned when the source path does not exist.
	ErrVideoNotFound = errors.New("vidscribe: video file not found")

	// ErrInvalidVideo is returned when the file is not a readable video.
	ErrInvalidVideo = errors.New("vidscribe: invalid video file")

	// ErrNoAudioTrack is returned when the video carries no audio to
	// transcribe.
	ErrNoAudioTrack = errors.New("vidscribe: video has no audio track")

	// ErrTimeout is returned when the rendering service does not finish
	// within the processing deadline.
	ErrTimeout = errors.New("vidscribe: processing deadline exceeded")

	// ErrCancelled is returned when the job was cancelled.
	ErrCancelled = errors.New("vidscribe: job cancelled")

	// ErrProcessingFailed is returned when the rendering service reports
	// a failed request.
	ErrProcessingFailed = errors.New("vidscribe: remote processing failed")

	// ErrNoResultVideo is returned when a completed request yields no
	// output artifact.
	ErrNoResultVideo = errors.New("vidscribe: completed request has no result video")
)

// FileTooLargeError is returned when the source file exceeds the upload
// limit.
type FileTooLargeError struct {
	SizeBytes int64
	MaxBytes  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("vidscribe: file is %d bytes, limit is %d", e.SizeBytes, e.MaxBytes)
}
