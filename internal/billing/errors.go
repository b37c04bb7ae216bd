package billing

import "errors"

var (
	ErrInvalidInterval     = errors.New("billing: interval ends before it starts")
	ErrEmptyMembers        = errors.New("billing: session needs at least one member")
	ErrEmptyResources      = errors.New("billing: session needs at least one resource")
	ErrMultipleResources   = errors.New("billing: a session bills exactly one table or hall")
	ErrUnknownModel        = errors.New("billing: unknown billing model")
	ErrUnknownKind         = errors.New("billing: unknown session kind")
	ErrDuplicateMember     = errors.New("billing: member is already in this session")
	ErrMemberBusyElsewhere = errors.New("billing: member is active in another session")
	ErrMemberNotFound      = errors.New("billing: member is not active in this session")
	ErrResourceUnavailable = errors.New("billing: resource is not available")
	ErrInsufficientStock   = errors.New("billing: insufficient stock")
	ErrInvalidQuantity     = errors.New("billing: quantity delta must not be zero")
	ErrOrderLineNotFound   = errors.New("billing: no order line for product")
	ErrPromocodeInvalid    = errors.New("billing: promocode is not valid")
	ErrAlreadyClosed       = errors.New("billing: session is already closed")
	ErrConflict            = errors.New("billing: concurrent modification, reload and retry")
)

// IsRetryable reports whether the caller may re-read state and try the operation again.
// Only ErrConflict qualifies; everything else is a business rule violation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
