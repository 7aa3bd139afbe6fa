package domain

import "errors"

// Sentinel errors shared by the engine's layers. Callers match them with
// errors.Is; wrapping with fmt.Errorf("...: %w", err) preserves the kind.
var (
	// ErrNotFound reports an unresolvable card, deck or user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRating reports a rating outside the four-valued enum.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrInvalidTimeOrder reports a review time earlier than the last
	// recorded review. A negative elapsed time would corrupt the
	// stability computation, so it is rejected rather than clamped.
	ErrInvalidTimeOrder = errors.New("review time precedes last review")
	// ErrConflict reports a concurrent write detected by the atomic
	// review transaction. It is retryable: re-invoking the operation
	// repeats the whole read-modify-write with a fresh read.
	ErrConflict = errors.New("persistence conflict")
)
