package engine

import (
	"errors"
	"fmt"

	"execdesk/internal/repo"
)

// Error taxonomy returned by engine operations. All are caller errors; the
// engine never retries or silently recovers beyond the documented idempotent
// no-ops.
var (
	ErrSelfApproval        = errors.New("self-approval forbidden")
	ErrAlreadyResolved     = errors.New("alert already resolved")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged by another actor")
	ErrInsufficientData    = errors.New("insufficient data: no samples in period")

	// ErrConcurrencyConflict is the repo's optimistic-version failure; safe to
	// retry after re-reading current state.
	ErrConcurrencyConflict = repo.ErrConflict
)

// TransitionError reports a state change not permitted from the current state.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// IsInvalidTransition reports whether err is a TransitionError.
func IsInvalidTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
