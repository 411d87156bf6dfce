package session

import "errors"

// Sentinel errors for the session package.
// Use errors.Is to check: errors.Is(err, session.ErrInvalidState)
var (
	ErrEmptySession  = errors.New("session: no cards to study")
	ErrInvalidState  = errors.New("session: operation not allowed in current state")
	ErrStaleResponse = errors.New("session: response does not match the current card")
)
