// Package session holds the per-user order-intake conversation state.
package session

import (
	"context"
	"errors"
	"time"
)

// Step identifies a position in the order-intake sequence. The set is closed;
// steps only move forward, or re-enter themselves on validation failure.
type Step string

const (
	StepIdle              Step = "idle"
	StepAwaitingName      Step = "awaiting_name"
	StepAwaitingQuantity  Step = "awaiting_quantity"
	StepAwaitingCustomQty Step = "awaiting_custom_quantity"
	StepAwaitingPhone     Step = "awaiting_phone"
	StepAwaitingAddress   Step = "awaiting_address"
	StepReadyForCheckout  Step = "ready_for_checkout"
	StepCompleted         Step = "completed"
)

// ErrNotFound is returned when a user has no stored session.
var ErrNotFound = errors.New("session: not found")

// Session is one user's in-progress order intake. Fields beyond Step are
// populated strictly in step order and never read before their step completed.
type Session struct {
	UserID   int64  `json:"user_id"`
	Step     Step   `json:"step"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Quantity int    `json:"quantity,omitempty"`

	// AmountMinor is the total in minor currency units, set when the address
	// step completes.
	AmountMinor int64 `json:"amount_minor,omitempty"`
	// CheckoutToken keys the idempotent order insert for this session.
	CheckoutToken string `json:"checkout_token,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the session is inside the intake sequence.
func (s *Session) Active() bool {
	return s != nil && s.Step != StepIdle && s.Step != StepCompleted
}

// Store persists sessions keyed by user ID. Mutations are only visible to the
// same user's subsequent lookups.
type Store interface {
	// GetOrCreate returns the user's session, creating an idle one if absent.
	GetOrCreate(ctx context.Context, userID int64) (*Session, error)
	// Get returns the user's session or ErrNotFound.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Save stores the session and refreshes its TTL.
	Save(ctx context.Context, s *Session) error
	// Clear removes the user's session.
	Clear(ctx context.Context, userID int64) error
}
