package confirm

import "errors"

var (
	// ErrSessionNotFound covers unknown ids and sessions already destroyed
	// by cancel or successful confirmation.
	ErrSessionNotFound = errors.New("confirmation session not found")
	// ErrSessionExpired means the session outlived its absolute TTL; it
	// behaves like a cancelled session for all subsequent calls.
	ErrSessionExpired = errors.New("confirmation session expired")
	// ErrStageMismatch rejects out-of-order or replayed stage submissions.
	ErrStageMismatch = errors.New("submitted stage does not match current stage")
	// ErrValidationFailed means the stage input did not match its predicate;
	// the session is unchanged and the stage may be retried.
	ErrValidationFailed = errors.New("stage input validation failed")
	// ErrSessionLocked means the post-stage-5 settle delay is in progress;
	// no further submissions or cancels are accepted.
	ErrSessionLocked = errors.New("confirmation session is locked")
)
