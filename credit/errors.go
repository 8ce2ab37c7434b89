package credit

import (
	"errors"
	"fmt"
)

// Sentinel errors for ledger operations.
var (
	ErrInvalidAmount       = errors.New("vidscribe: credit amount must be positive")
	ErrInsufficientCredits = errors.New("vidscribe: insufficient credits")
)

// InsufficientCreditsError reports a debit that would overdraw the
// balance. It wraps ErrInsufficientCredits so callers can match with
// errors.Is while keeping the structured amounts.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("vidscribe: insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
