package domain

import "errors"

// Sentinel errors shared across components. Handlers map these to HTTP
// statuses; everything else is reported as an internal error.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyDecided    = errors.New("request already decided")
	ErrPolicyBlocked     = errors.New("blocked by spend policy")
	ErrUpstream          = errors.New("upstream failure")
)
