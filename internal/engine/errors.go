package engine

import "errors"

// Failure modes surfaced to callers. Every operation validates and
// rejects before mutating any state, so all of these are recoverable.
var (
	// ErrInsufficientFunds means the user's balance is below the order
	// cost at placement time.
	ErrInsufficientFunds = errors.New("engine: insufficient funds")

	// ErrInvalidOrder covers a price outside [1, 99] or a non-positive
	// quantity. Normally rejected upstream, re-checked here.
	ErrInvalidOrder = errors.New("engine: invalid order parameters")

	// ErrAlreadyResolved means a mutating operation targeted an inactive
	// proposition.
	ErrAlreadyResolved = errors.New("engine: proposition already resolved")

	// ErrNotOwner means a cancellation or dismissal came from a user who
	// does not own the row.
	ErrNotOwner = errors.New("engine: not the owner")

	// ErrNotAuthorized means a non-staff user attempted resolution.
	ErrNotAuthorized = errors.New("engine: not authorized")

	// ErrStillActive means a payout dismissal targeted an active
	// proposition.
	ErrStillActive = errors.New("engine: proposition still active")

	// ErrNotFound means a dangling proposition, outcome, order, or
	// position id.
	ErrNotFound = errors.New("engine: not found")
)
