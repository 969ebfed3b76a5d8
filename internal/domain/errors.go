package domain

import "errors"

// Classification failures. Unavailable and timeout are transient and are
// retried by the pipeline; an invalid classification is not.
var (
	ErrClassificationUnavailable = errors.New("classification unavailable")
	ErrClassificationTimeout     = errors.New("classification timeout")
	ErrInvalidClassification     = errors.New("invalid classification")
)

// Aggregate failures.
var (
	// ErrInconsistentAggregate aborts a recompute; the previous score stays published.
	ErrInconsistentAggregate = errors.New("inconsistent aggregate state")
	// ErrPersistenceConflict is a write that lost against a concurrent writer.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrTrustScoreNotComputed means analytics was requested before any recompute.
	ErrTrustScoreNotComputed = errors.New("trust score not computed")
	// ErrUnknownFormula is returned for a formula version with no registered weights.
	ErrUnknownFormula = errors.New("unknown formula version")
)

// IsRetryableClassification reports whether err is worth another classify attempt.
func IsRetryableClassification(err error) bool {
	return errors.Is(err, ErrClassificationUnavailable) || errors.Is(err, ErrClassificationTimeout)
}
