package flow

import "context"

// Button is one selectable option attached to a reply.
type Button struct {
	Label string
	// Key and Data together form the opaque callback identifier.
	Key  string
	Data string
}

// Reply is the outbound message produced by one transition. Rendering and
// transport are the caller's concern.
type Reply struct {
	Text    string
	Buttons []Button

	// LinkLabel/LinkURL describe a single external link button, used for the
	// hosted payment page.
	LinkLabel string
	LinkURL   string
}

// Order captures a finalized intake, ready for persistence.
type Order struct {
	UserID        int64
	Name          string
	Phone         string
	Address       string
	Quantity      int
	AmountMinor   int64
	CheckoutToken string
}

// CheckoutRequest describes the single line item sent to the payment provider.
// AmountMinor is the total in the provider's smallest currency unit.
type CheckoutRequest struct {
	Description string
	AmountMinor int64
	Quantity    int64
	Token       string
}

// CheckoutRequester obtains a hosted payment URL for a finalized order.
type CheckoutRequester interface {
	RequestCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// OrderRepository persists order records. Insert must be idempotent on the
// order's CheckoutToken and return the record id either way.
type OrderRepository interface {
	Insert(ctx context.Context, o Order) (int64, error)
}

// Publisher announces a persisted order. Failures are logged, not surfaced.
type Publisher interface {
	OrderPlaced(ctx context.Context, orderID int64, o Order) error
}
