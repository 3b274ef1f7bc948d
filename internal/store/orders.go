// Package store persists completed orders in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// StatusPending is the payment status a fresh order row carries. Later
// statuses are written by whoever consumes UpdateStatus (payment webhooks,
// outside this service).
const StatusPending = "pending"

// Order is a persisted order record.
type Order struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	Name          string    `db:"name"`
	Phone         string    `db:"phone"`
	Address       string    `db:"address"`
	Quantity      int       `db:"quantity"`
	AmountMinor   int64     `db:"amount"`
	PaymentStatus string    `db:"payment_status"`
	CheckoutToken string    `db:"checkout_token"`
	CreatedAt     time.Time `db:"created_at"`
}

// Orders reads and writes order rows.
type Orders struct {
	db *sqlx.DB
}

// NewOrders wraps the database handle.
func NewOrders(db *sqlx.DB) *Orders {
	return &Orders{db: db}
}

// Insert writes an order and returns its row ID. The insert is idempotent on
// checkout_token: replaying the same order returns the existing row's ID
// without creating a duplicate.
func (r *Orders) Insert(ctx context.Context, o Order) (int64, error) {
	const q = `
		INSERT INTO orders (user_id, name, phone, address, quantity, amount, payment_status, checkout_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (checkout_token) DO UPDATE SET checkout_token = EXCLUDED.checkout_token
		RETURNING id`

	status := o.PaymentStatus
	if status == "" {
		status = StatusPending
	}

	var id int64
	err := r.db.GetContext(ctx, &id, q,
		o.UserID, o.Name, o.Phone, o.Address, o.Quantity, o.AmountMinor, status, o.CheckoutToken,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert order: %w", err)
	}
	return id, nil
}

// UpdateStatus sets the payment status of the order with the given checkout
// token.
func (r *Orders) UpdateStatus(ctx context.Context, checkoutToken, status string) error {
	const q = `UPDATE orders SET payment_status = $1 WHERE checkout_token = $2`

	res, err := r.db.ExecContext(ctx, q, status, checkoutToken)
	if err != nil {
		return fmt.Errorf("store: update order status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: update order status: no order with token %s", checkoutToken)
	}
	return nil
}

// Recent returns the newest orders, most recent first.
func (r *Orders) Recent(ctx context.Context, limit int) ([]Order, error) {
	const q = `
		SELECT id, user_id, name, phone, address, quantity, amount, payment_status, checkout_token, created_at
		FROM orders
		ORDER BY id DESC
		LIMIT $1`

	if limit <= 0 {
		limit = 10
	}
	var orders []Order
	if err := r.db.SelectContext(ctx, &orders, q, limit); err != nil {
		return nil, fmt.Errorf("store: list recent orders: %w", err)
	}
	return orders, nil
}
