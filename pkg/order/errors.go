package order

import (
	"errors"
	"fmt"
)

// Domain rule violations surfaced to clients with fixed messages.
var (
	ErrTypeNotAllowed     = errors.New("order type not supported")
	ErrOrderAlreadyExists = errors.New("ORDER_ALREADY_EXISTS")
	ErrInvalidSalt        = errors.New("invalid salt")
	ErrSellSideETH        = errors.New("sell order cannot use ETH as the make asset")
	ErrInvalidAssetClass  = errors.New("invalid asset class")
	ErrSignatureMismatch  = errors.New("signature does not match maker")
	ErrAllowanceFailed    = errors.New("insufficient balance or allowance")
	ErrNotFound           = errors.New("order not found")
)

// ValidationError marks a malformed or missing field, rejected before any
// side effect.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
