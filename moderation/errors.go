package moderation

import (
	"errors"
)

var (
	// compare-and-set of active=true→false was rejected; benign
	ErrNotActive = errors.New("infraction is not active")
	// platform user is gone (left, deleted, or never a member)
	ErrTargetNotFound = errors.New("target not found on platform")
	// bot lacks rights for the platform action or store call
	ErrPermissionDenied = errors.New("permission denied")
	// retryable network failure, after retries were exhausted
	ErrTransient = errors.New("transient network failure")
	// the subject could not be messaged; never fatal
	ErrNotificationFailed = errors.New("notification delivery failed")

	ErrAlreadyActive      = errors.New("subject already has an active infraction of this type")
	ErrNoActiveInfraction = errors.New("no active infraction of this type")
	ErrNotFound           = errors.New("infraction not found")
	ErrInvalidInfraction  = errors.New("invalid infraction")
	ErrInvalidSearch      = errors.New("invalid search pattern")
)

// Returned by the pre-creation check, carrying the conflicting infraction.
type AlreadyActiveError struct {
	Existing Infraction
}

func (e *AlreadyActiveError) Error() string {
	return "subject already has an active " + string(e.Existing.Kind) + " infraction"
}

func (e *AlreadyActiveError) Unwrap() error {
	return ErrAlreadyActive
}
