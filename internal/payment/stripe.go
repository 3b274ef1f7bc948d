// Package payment creates hosted checkout sessions through Stripe.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/m3rciful/vinylbot/core/logger"
	"github.com/m3rciful/vinylbot/internal/flow"
)

// Config holds Stripe credentials and the redirect URLs a finished
// checkout lands on.
type Config struct {
	SecretKey  string `yaml:"secret_key" envconfig:"STRIPE_SECRET_KEY"`
	SuccessURL string `yaml:"success_url" envconfig:"STRIPE_SUCCESS_URL"`
	CancelURL  string `yaml:"cancel_url" envconfig:"STRIPE_CANCEL_URL"`
	Currency   string `yaml:"currency" envconfig:"STRIPE_CURRENCY"`
}

// Client implements flow.CheckoutRequester on top of the Stripe API.
type Client struct {
	api *client.API
	cfg Config
}

// NewClient validates the configuration and builds a Stripe-backed client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("payment: secret key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("payment: success and cancel URLs are required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{api: api, cfg: cfg}, nil
}

// RequestCheckout creates a single-payment checkout session and returns its
// hosted URL. The whole order total goes on one line item so the session
// amount always matches the quoted price exactly.
func (c *Client) RequestCheckout(ctx context.Context, req flow.CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.cfg.Currency),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.Token),
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("payment: create checkout session: %w", err)
	}

	logger.Debug(ctx, "payment", "checkout.created",
		slog.String("session_id", sess.ID),
		slog.Int64("amount_minor", req.AmountMinor),
	)
	return sess.URL, nil
}
