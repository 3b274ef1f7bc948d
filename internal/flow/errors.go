package flow

import (
	"errors"
	"fmt"
)

// ErrNoSession signals an event for a user with no active intake session,
// e.g. stray text outside the flow. Callers ignore it silently.
var ErrNoSession = errors.New("flow: no active session")

// ValidationError reports rejected user input. The session stays on the same
// step so the next input is evaluated against the same rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow: invalid %s: %s", e.Field, e.Reason)
}

// Code labels the error for handler summary logs.
func (e *ValidationError) Code() string { return "VALIDATION" }

// ProviderError wraps a payment collaborator failure. The session stays at
// the checkout step so the same input can be retried.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("flow: payment provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Code labels the error for handler summary logs.
func (e *ProviderError) Code() string { return "PAYMENT_PROVIDER" }

// PersistenceError wraps an order repository failure. The session stays at
// the checkout step; the insert is idempotent, so a retry cannot duplicate
// the order.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("flow: order persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code labels the error for handler summary logs.
func (e *PersistenceError) Code() string { return "PERSISTENCE" }
