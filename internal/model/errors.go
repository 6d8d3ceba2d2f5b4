package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed construction-time input.
	ErrValidation = errors.New("validation error")

	// ErrUnknownParameter is returned when a function is invoked with a
	// parameter it does not declare.
	ErrUnknownParameter = fmt.Errorf("%w: invalid param", ErrValidation)

	// ErrInvalidValue is returned when an argument violates its parameter's
	// enumerated values.
	ErrInvalidValue = fmt.Errorf("%w: invalid value", ErrValidation)

	// ErrBudget is returned when a turn cannot fit its mandatory content.
	ErrBudget = errors.New("token budget exceeded")

	// ErrExecution wraps failures raised by a function's executable.
	ErrExecution = errors.New("function execution failed")

	// ErrFunctionNotFound is returned when a requested name matches no offered function.
	ErrFunctionNotFound = errors.New("function not found")
)

// Budgetf formats an ErrBudget error.
func Budgetf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBudget, fmt.Sprintf(format, args...))
}

// Validationf formats an ErrValidation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
