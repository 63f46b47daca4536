package session

import "errors"

var (
	ErrAlreadyActive   = errors.New("a reading session is already active")
	ErrNoActiveSession = errors.New("no active reading session")
	ErrSessionNotFound = errors.New("session not found on authority")
	ErrDuplicate       = errors.New("session already applied")
	ErrValidation      = errors.New("validation failed")
)

// IsRetryable reports whether a remote failure should fall back to the
// offline path and be replayed later. Terminal failures surface to the
// caller and are never retried.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
