package exception

import (
	"context"
	"errors"
)

// Venue execution errors. Recoverable at the batch level, fatal at the
// atomic-group level.
var (
	ErrVenueExecution         = errors.New("venue: execution failed")
	ErrVenueTimeout           = errors.New("venue: call timed out")
	ErrVenueUnavailable       = errors.New("venue: temporarily unavailable")
	ErrVenueAtomicUnsupported = errors.New("venue: adapter cannot compose atomically")
	ErrVenueEmptyGroup        = errors.New("venue: empty atomic group")
)

// IsTransient reports whether a venue error is worth a bounded retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrVenueTimeout) ||
		errors.Is(err, ErrVenueUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
