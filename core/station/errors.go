package station

import "errors"

var (
	// ErrNotFound reports an unknown user, pile or ticket.
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded reports a full waiting area or pile queue.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidState reports an operation that does not apply to the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnknownUser reports a request from a user the gateway does not know.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNoWork reports a batch run that found nothing to assign.
	ErrNoWork = errors.New("nothing to schedule")
)
