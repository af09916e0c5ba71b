package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicate                 = errors.New("ledger: duplicate")
	ErrNotFound                  = errors.New("ledger: not found")
	ErrOutOfStock                = errors.New("ledger: out of stock")
	ErrInsufficientOrderQuantity = errors.New("ledger: insufficient order quantity")
	ErrInvalidArgument           = errors.New("ledger: invalid argument")
	ErrProtectedReference        = errors.New("ledger: protected reference")
	ErrAlreadyExists             = errors.New("ledger: already exists")

	// ErrInsufficientStock is returned by the stock ledger when an adjustment
	// would drive the quantity below zero. Order operations report it as ErrOutOfStock.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")

	// ErrContention marks transient lock contention in the store (deadlock,
	// lock wait timeout). It is the only retryable error.
	ErrContention = errors.New("ledger: store contention")
)

// ValidationError represents a rejected input value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// IsRetryable returns true if the operation failed on transient contention
// and may be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}
