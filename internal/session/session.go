// Package session carries the caller's identity explicitly through every core
// operation instead of reading it from shared global state.
package session

import (
	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/fault"
)

// Session is the opaque token issued by the identity service plus the user it
// belongs to. The core only forwards the token.
type Session struct {
	Token  string
	UserID uuid.UUID
}

func New(token string, userID uuid.UUID) Session {
	return Session{Token: token, UserID: userID}
}

// Authenticated reports whether a token and user are present.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != uuid.Nil
}

// Require returns fault.ErrAuthRequired for an unauthenticated session.
func (s Session) Require() error {
	if !s.Authenticated() {
		return fault.ErrAuthRequired
	}
	return nil
}
