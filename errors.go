package vidscribe

import (
	"errors"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/remote"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("vidscribe: not found")
	ErrAlreadyExists = errors.New("vidscribe: already exists")
	ErrNotStarted    = errors.New("vidscribe: session not started")

	// Entity errors
	ErrUserNotFound = errors.New("vidscribe: user not found")
	ErrJobNotFound  = errors.New("vidscribe: job not found")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, job.ErrVideoNotFound) {
		return true
	}
	var rerr *remote.Error
	return errors.As(err, &rerr) && rerr.Kind == remote.KindNotFound
}

// IsValidation returns true if the error reflects bad local input that
// retrying cannot fix.
func IsValidation(err error) bool {
	var tooLarge *job.FileTooLargeError
	return errors.Is(err, credit.ErrInvalidAmount) ||
		errors.Is(err, job.ErrInvalidVideo) ||
		errors.Is(err, job.ErrNoAudioTrack) ||
		errors.As(err, &tooLarge)
}

// IsInsufficientCredits returns true if the error means the user's
// balance cannot cover the requested operation.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, credit.ErrInsufficientCredits)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, job.ErrTimeout) || remote.IsRetryable(err)
}
