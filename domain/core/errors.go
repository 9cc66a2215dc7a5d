package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrContrastNotFound = fmt.Errorf("%w: contrast", ErrNotFound)

	// Input errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrMissingDesign = errors.New("sample missing from design")
	ErrEmptyTable    = fmt.Errorf("%w: empty table", ErrInvalidInput)

	// Numerical errors
	ErrConvergence             = errors.New("convergence failure")
	ErrScaleMismatch           = errors.New("scale mismatch")
	ErrDegenerate              = errors.New("numerical degeneracy")
	ErrInsufficientReplication = errors.New("insufficient replication")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

// NewConvergenceError names the unit (run, protein, model) that failed to converge.
func NewConvergenceError(unit string, iterations int) error {
	return fmt.Errorf("%w: %s did not converge after %d iterations", ErrConvergence, unit, iterations)
}

func NewScaleMismatchError(operation string, scale fmt.Stringer) error {
	return fmt.Errorf("%w: %s cannot be applied to %s data", ErrScaleMismatch, operation, scale)
}

func NewMissingDesignError(sample string) error {
	return fmt.Errorf("%w: %s", ErrMissingDesign, sample)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingDesign) ||
		errors.Is(err, ErrScaleMismatch)
}

// IsFatalForVariant reports whether err must fail the whole pipeline variant.
func IsFatalForVariant(err error) bool {
	return errors.Is(err, ErrConvergence) ||
		errors.Is(err, ErrScaleMismatch) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingDesign)
}
