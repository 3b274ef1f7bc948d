// Package flow implements the per-user order-intake step machine: it advances
// one user's session in response to chat events, validates input, computes
// the price, and orchestrates checkout and persistence.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/vinylbot/core/logger"
	"github.com/m3rciful/vinylbot/core/telegram/format"
	"github.com/m3rciful/vinylbot/internal/pricing"
	"github.com/m3rciful/vinylbot/internal/session"
)

// CallbackQuantity is the callback key used by quantity selection buttons.
const CallbackQuantity = "qty"

// QuantityCustom is the button payload selecting free-text quantity entry.
const QuantityCustom = "custom"

// MaxQuantity bounds a single order. Keeps linear pricing far away from
// int64 overflow and rejects obviously bogus entries.
const MaxQuantity = 1000

const (
	promptName           = "*Please enter your full name:*"
	promptQuantity       = "*Select quantity:*"
	promptCustomQuantity = "*Please enter your desired quantity:*"
	promptPhone          = "*Please enter your mobile number:*"
	promptAddress        = "*Please enter your delivery address:*"

	msgInvalidPhone    = "❌ Please enter a valid phone number (digits only, min 9 digits)."
	msgInvalidQuantity = "❌ Please enter a valid quantity (a whole number between 1 and 1000)."
	msgPaymentRetry    = "⚠️ Could not reach the payment provider. Send any message to try again."
	msgOrderSaveRetry  = "⚠️ Your order could not be saved. Send any message to try again."
	msgCancelled       = "Order cancelled. Send /start to begin again."
)

var phoneRe = regexp.MustCompile(`^\d{9,}$`)

// Config wires the machine's collaborators.
type Config struct {
	Sessions session.Store
	Prices   *pricing.Table
	Checkout CheckoutRequester
	Orders   OrderRepository
	// Events is optional; a nil publisher disables order announcements.
	Events  Publisher
	Product string
}

// Machine advances order-intake sessions. All entry points serialize per
// user, so two rapid inputs from one user never interleave their mutations.
type Machine struct {
	sessions session.Store
	prices   *pricing.Table
	checkout CheckoutRequester
	orders   OrderRepository
	events   Publisher
	product  string
	locks    *userLocks
}

// New validates the configuration and builds a Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("flow: session store is required")
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("flow: price table is required")
	}
	if cfg.Checkout == nil {
		return nil, fmt.Errorf("flow: checkout requester is required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("flow: order repository is required")
	}
	product := strings.TrimSpace(cfg.Product)
	if product == "" {
		return nil, fmt.Errorf("flow: product name is required")
	}
	return &Machine{
		sessions: cfg.Sessions,
		prices:   cfg.Prices,
		checkout: cfg.Checkout,
		orders:   cfg.Orders,
		events:   cfg.Events,
		product:  product,
		locks:    newUserLocks(),
	}, nil
}

// InProgress reports whether the user has an active intake session.
func (m *Machine) InProgress(userID int64) bool {
	s, err := m.sessions.Get(context.Background(), userID)
	if err != nil {
		return false
	}
	return s.Active()
}

// Start begins a new intake for the user, discarding any previous session.
func (m *Machine) Start(ctx context.Context, userID int64) (Reply, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	s, err := m.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("flow: load session: %w", err)
	}
	*s = session.Session{UserID: userID, Step: session.StepAwaitingName}
	if err := m.sessions.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("flow: save session: %w", err)
	}
	logger.Debug(ctx, "flow", "intake.started", slog.Int64("user_id", userID))
	return Reply{Text: promptName}, nil
}

// Text feeds a free-text input to the user's current step.
func (m *Machine) Text(ctx context.Context, userID int64, text string) (Reply, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	s, err := m.activeSession(ctx, userID)
	if err != nil {
		return Reply{}, err
	}

	switch s.Step {
	case session.StepAwaitingName:
		return m.handleName(ctx, s, text)
	case session.StepAwaitingCustomQty:
		return m.handleCustomQuantity(ctx, s, text)
	case session.StepAwaitingPhone:
		return m.handlePhone(ctx, s, text)
	case session.StepAwaitingAddress:
		return m.handleAddress(ctx, s, text)
	case session.StepReadyForCheckout:
		// Any message retries checkout and persistence with collected data.
		return m.finalize(ctx, s)
	default:
		return Reply{}, ErrNoSession
	}
}

// Quantity feeds a quantity button selection to the user's session.
// Payload is either a positive integer or QuantityCustom.
func (m *Machine) Quantity(ctx context.Context, userID int64, payload string) (Reply, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	s, err := m.activeSession(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	if s.Step != session.StepAwaitingQuantity {
		// Stale button press from an earlier message.
		return Reply{}, ErrNoSession
	}

	if payload == QuantityCustom {
		s.Step = session.StepAwaitingCustomQty
		if err := m.sessions.Save(ctx, s); err != nil {
			return Reply{}, fmt.Errorf("flow: save session: %w", err)
		}
		return Reply{Text: promptCustomQuantity}, nil
	}

	qty, err := strconv.Atoi(payload)
	if err != nil || qty < 1 || qty > MaxQuantity {
		return Reply{}, &ValidationError{Field: "quantity", Reason: "out of range"}
	}
	return m.setQuantity(ctx, s, qty)
}

// Cancel abandons the user's in-progress intake.
func (m *Machine) Cancel(ctx context.Context, userID int64) (Reply, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	if _, err := m.activeSession(ctx, userID); err != nil {
		return Reply{}, err
	}
	if err := m.sessions.Clear(ctx, userID); err != nil {
		return Reply{}, fmt.Errorf("flow: clear session: %w", err)
	}
	logger.Debug(ctx, "flow", "intake.cancelled", slog.Int64("user_id", userID))
	return Reply{Text: msgCancelled}, nil
}

// QuantityButtons builds the bounded quantity menu: one button per configured
// tier, in ascending order, plus the free-entry branch.
func (m *Machine) QuantityButtons() []Button {
	tiers := m.prices.Tiers()
	buttons := make([]Button, 0, len(tiers)+1)
	for _, q := range tiers {
		buttons = append(buttons, Button{
			Label: strconv.Itoa(q),
			Key:   CallbackQuantity,
			Data:  strconv.Itoa(q),
		})
	}
	buttons = append(buttons, Button{
		Label: fmt.Sprintf("%d+", m.prices.MaxTier()+1),
		Key:   CallbackQuantity,
		Data:  QuantityCustom,
	})
	return buttons
}

func (m *Machine) activeSession(ctx context.Context, userID int64) (*session.Session, error) {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if err == session.ErrNotFound {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("flow: load session: %w", err)
	}
	if !s.Active() {
		return nil, ErrNoSession
	}
	return s, nil
}

func (m *Machine) handleName(ctx context.Context, s *session.Session, text string) (Reply, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return Reply{Text: promptName}, &ValidationError{Field: "name", Reason: "empty"}
	}
	s.Name = name
	s.Step = session.StepAwaitingQuantity
	if err := m.sessions.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("flow: save session: %w", err)
	}
	return Reply{Text: promptQuantity, Buttons: m.QuantityButtons()}, nil
}

func (m *Machine) handleCustomQuantity(ctx context.Context, s *session.Session, text string) (Reply, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || qty < 1 || qty > MaxQuantity {
		return Reply{Text: msgInvalidQuantity}, &ValidationError{Field: "quantity", Reason: "out of range"}
	}
	return m.setQuantity(ctx, s, qty)
}

func (m *Machine) setQuantity(ctx context.Context, s *session.Session, qty int) (Reply, error) {
	s.Quantity = qty
	s.Step = session.StepAwaitingPhone
	if err := m.sessions.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("flow: save session: %w", err)
	}
	logger.Debug(ctx, "flow", "quantity.selected",
		slog.Int64("user_id", s.UserID),
		slog.Int("quantity", qty),
	)
	return Reply{Text: promptPhone}, nil
}

func (m *Machine) handlePhone(ctx context.Context, s *session.Session, text string) (Reply, error) {
	phone := strings.TrimSpace(text)
	if !phoneRe.MatchString(phone) {
		return Reply{Text: msgInvalidPhone}, &ValidationError{Field: "phone", Reason: "digits only, min 9 digits"}
	}
	s.Phone = phone
	s.Step = session.StepAwaitingAddress
	if err := m.sessions.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("flow: save session: %w", err)
	}
	return Reply{Text: promptAddress}, nil
}

func (m *Machine) handleAddress(ctx context.Context, s *session.Session, text string) (Reply, error) {
	address := strings.TrimSpace(text)
	if address == "" {
		return Reply{Text: promptAddress}, &ValidationError{Field: "address", Reason: "empty"}
	}

	amount, err := m.prices.Price(s.Quantity)
	if err != nil {
		return Reply{}, fmt.Errorf("flow: price: %w", err)
	}

	s.Address = address
	s.AmountMinor = amount
	s.CheckoutToken = uuid.NewString()
	s.Step = session.StepReadyForCheckout
	if err := m.sessions.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("flow: save session: %w", err)
	}

	return m.finalize(ctx, s)
}

// finalize requests the hosted payment URL and persists the order record.
// On collaborator failure the session stays at ReadyForCheckout so the same
// input can be retried without repeating the conversation.
func (m *Machine) finalize(ctx context.Context, s *session.Session) (Reply, error) {
	order := Order{
		UserID:        s.UserID,
		Name:          s.Name,
		Phone:         s.Phone,
		Address:       s.Address,
		Quantity:      s.Quantity,
		AmountMinor:   s.AmountMinor,
		CheckoutToken: s.CheckoutToken,
	}

	url, err := m.checkout.RequestCheckout(ctx, CheckoutRequest{
		Description: fmt.Sprintf("%s x%d", m.product, order.Quantity),
		AmountMinor: order.AmountMinor,
		Quantity:    int64(order.Quantity),
		Token:       order.CheckoutToken,
	})
	if err != nil {
		perr := &ProviderError{Err: err}
		logger.Error(ctx, "flow", "checkout.failed",
			slog.Int64("user_id", s.UserID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgPaymentRetry}, perr
	}

	orderID, err := m.orders.Insert(ctx, order)
	if err != nil {
		perr := &PersistenceError{Err: err}
		logger.Error(ctx, "flow", "order.insert_failed",
			slog.Int64("user_id", s.UserID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgOrderSaveRetry}, perr
	}

	s.Step = session.StepCompleted
	if err := m.sessions.Clear(ctx, s.UserID); err != nil {
		logger.Warn(ctx, "flow", "session.clear_failed",
			slog.Int64("user_id", s.UserID),
			slog.String("err", err.Error()),
		)
	}

	if m.events != nil {
		if err := m.events.OrderPlaced(ctx, orderID, order); err != nil {
			logger.Warn(ctx, "flow", "order.publish_failed",
				slog.Int64("order_id", orderID),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.Info(ctx, "flow", "order.completed",
		slog.Int64("user_id", s.UserID),
		slog.Int64("order_id", orderID),
		slog.Int("quantity", order.Quantity),
		slog.Int64("amount_minor", order.AmountMinor),
	)

	return Reply{
		Text:      m.summary(order),
		LinkLabel: "💳 Pay Now",
		LinkURL:   url,
	}, nil
}

func (m *Machine) summary(o Order) string {
	return fmt.Sprintf(
		"*Order Summary:*\n\n👤 Name: %s\n📦 Quantity: %d\n📱 Phone: %s\n🏠 Address: %s\n\n💰 *Total: %s*",
		format.EscapeMarkdown(o.Name),
		o.Quantity,
		o.Phone,
		format.EscapeMarkdown(o.Address),
		FormatAmount(o.AmountMinor),
	)
}

// FormatAmount renders a minor-unit amount as a dollar string, dropping the
// cents when they are zero.
func FormatAmount(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("$%d", minor/100)
	}
	return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
}
