package repository

import "errors"

// Sentinel errors shared by all implementations. Services translate these
// into the coded errors surfaced at the HTTP boundary.
var (
	// ErrNotFound: the referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate: a unique constraint (username, email) was violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotPending: a review was attempted on an analysis that is no
	// longer pending. This is how the conditional-update race loser learns
	// it lost.
	ErrNotPending = errors.New("analysis is not pending")
)
