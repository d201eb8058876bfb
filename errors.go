package ges

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is the sentinel matched by errors.Is against any
// *VersionConflictError[V], regardless of V.
var ErrVersionConflict = errors.New("ges: version conflict")

// ErrMaxRetries is returned by Execute/ExecuteReifyDecide when max_retries
// attempts are exhausted under continuous contention.
var ErrMaxRetries = errors.New("ges: max retries exceeded")

// ErrVersionStuck is returned by Execute instead of retrying when a
// version conflict's actual version is NoStream for a caller-supplied
// ExistingStream id: there is no history to catch up from, so further
// retries cannot change the outcome.
var ErrVersionStuck = errors.New("ges: version conflict could not be resolved by catch-up")

// VersionConflictError carries the structured mismatch an EventRepository
// or SnapshotRepository observed while appending/saving under an
// expected-version guard.
type VersionConflictError[V comparable] struct {
	StreamID string
	Diff     VersionDiff[V]
}

func (e *VersionConflictError[V]) Error() string {
	return fmt.Sprintf("ges: version conflict on stream %s: %s", e.StreamID, e.Diff)
}

// Is allows errors.Is(err, ErrVersionConflict) to match this type.
func (e *VersionConflictError[V]) Is(target error) bool {
	return target == ErrVersionConflict
}

// DomainError wraps the error a Decider returned, surfaced verbatim to
// the caller of Execute/ExecuteReifyDecide: no retry, no write happened.
type DomainError struct {
	Cause error
}

func (e *DomainError) Error() string { return e.Cause.Error() }
func (e *DomainError) Unwrap() error { return e.Cause }

// RepositoryError wraps a non-OCC backend failure (transport,
// serialization, backend-internal error): retries do not help, and the
// cause is surfaced verbatim.
type RepositoryError struct {
	Cause error
}

func (e *RepositoryError) Error() string { return e.Cause.Error() }
func (e *RepositoryError) Unwrap() error { return e.Cause }
