// Package identity resolves the authenticated user for a session.
package identity

import (
	"context"
	"errors"

	"github.com/vidscribe/vidscribe/id"
)

// ErrNotAuthenticated is returned when no user is signed in.
var ErrNotAuthenticated = errors.New("vidscribe: not authenticated")

// Provider resolves the current user's identity. Implementations must
// be safe for concurrent use.
type Provider interface {
	// UserID returns the authenticated user's identifier, or
	// ErrNotAuthenticated when no session exists.
	UserID(ctx context.Context) (id.UserID, error)
}

// Static is a Provider fixed to a single user, for tests and
// single-user deployments.
type Static struct {
	ID id.UserID
}

var _ Provider = (*Static)(nil)

func (s *Static) UserID(ctx context.Context) (id.UserID, error) {
	if s.ID.IsNil() {
		return id.UserID{}, ErrNotAuthenticated
	}
	return s.ID, nil
}
