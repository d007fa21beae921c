package services

import "errors"

// Error kinds surfaced by the engines. Callers discriminate with
// errors.Is; every returned error wraps exactly one of these so the
// HTTP layer can map kinds to responses without parsing messages.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("access denied")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientQuantity   = errors.New("insufficient quantity")
	ErrInsufficientCollateral = errors.New("insufficient collateral coverage")
	ErrConcurrentModification = errors.New("concurrent modification")
)
