package engine

import "errors"

// Domain errors. All are expected, recoverable outcomes reported to the
// caller; only storage I/O failures surface as anything else.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrNotApproved  = errors.New("driver not approved")
	ErrNotOnline    = errors.New("driver not online")
	ErrNotAvailable = errors.New("order not available")
	ErrAlreadyTaken = errors.New("order already taken")
	ErrNotActive    = errors.New("order not active")
)

// Code maps a domain error to its wire-level error code. Unrecognized
// errors are storage-class faults and map to INTERNAL.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotApproved):
		return "NOT_APPROVED"
	case errors.Is(err, ErrNotOnline):
		return "NOT_ONLINE"
	case errors.Is(err, ErrNotAvailable):
		return "NOT_AVAILABLE"
	case errors.Is(err, ErrAlreadyTaken):
		return "ALREADY_TAKEN"
	case errors.Is(err, ErrNotActive):
		return "NOT_ACTIVE"
	}
	return "INTERNAL"
}
