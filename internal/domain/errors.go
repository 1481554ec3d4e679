package domain

import "fmt"

// Error types for consistent error handling across the estimator.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrThresholdExceeded indicates revenue above the flat-rate regime ceiling.
type ErrThresholdExceeded struct {
	Revenue   float64
	Threshold float64
}

func (e *ErrThresholdExceeded) Error() string {
	return fmt.Sprintf("revenue %.0f exceeds the flat-rate threshold %.0f", e.Revenue, e.Threshold)
}

// ErrUnauthorized indicates a missing or wrong admin key.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
