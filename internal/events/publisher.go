// Package events announces completed orders on a message broker so
// downstream consumers (fulfilment, notifications) can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/m3rciful/vinylbot/internal/flow"
)

// RoutingKeyOrderPlaced is the routing key for completed-order messages.
const RoutingKeyOrderPlaced = "order.placed"

// Config holds broker connection settings. An empty URL disables publishing.
type Config struct {
	URL      string `yaml:"url" envconfig:"AMQP_URL"`
	Exchange string `yaml:"exchange" envconfig:"AMQP_EXCHANGE"`
}

// Publisher sends order events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("events: broker URL is required")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "orders"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

type orderPlacedMessage struct {
	OrderID       int64     `json:"order_id"`
	UserID        int64     `json:"user_id"`
	Quantity      int       `json:"quantity"`
	AmountMinor   int64     `json:"amount_minor"`
	CheckoutToken string    `json:"checkout_token"`
	PlacedAt      time.Time `json:"placed_at"`
}

// OrderPlaced publishes a completed order. The checkout token doubles as the
// message ID so consumers can deduplicate redeliveries.
func (p *Publisher) OrderPlaced(ctx context.Context, orderID int64, o flow.Order) error {
	body, err := json.Marshal(orderPlacedMessage{
		OrderID:       orderID,
		UserID:        o.UserID,
		Quantity:      o.Quantity,
		AmountMinor:   o.AmountMinor,
		CheckoutToken: o.CheckoutToken,
		PlacedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("events: marshal order: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyOrderPlaced, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.CheckoutToken,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: publish order: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("events: close channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("events: close connection: %w", err)
	}
	return nil
}
