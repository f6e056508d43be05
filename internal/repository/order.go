package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cisasmendi/sistema-stock/internal/domain/order"
)

const (
	orderColumns = `id, user_id, total, status, created_at, paid_at, dispatched_at,
		delivered_at, reserved_until, shipping_code, payment_proof, shipping_address,
		contact_phone, contact_email, notes, presential`

	insertOrderSQL = `INSERT INTO orders (id, user_id, total, status, created_at,
			paid_at, reserved_until, shipping_address, contact_phone, contact_email,
			notes, presential)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderLineSQL = `INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 ORDER BY created_at DESC`

	listExpiredOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 AND reserved_until IS NOT NULL AND reserved_until < $2
		ORDER BY created_at`

	orderLineColumns = `id, order_id, product_id, product_name, quantity, unit_price`

	listOrderLinesSQL = `SELECT ` + orderLineColumns + ` FROM order_items
		WHERE order_id = $1 ORDER BY product_name`

	listOrderLinesForSQL = `SELECT ` + orderLineColumns + ` FROM order_items
		WHERE order_id = ANY($1) ORDER BY product_name`

	markPaidSQL = `UPDATE orders
		SET status = $2, paid_at = $3, payment_proof = $4, reserved_until = NULL, updated_at = now()
		WHERE id = $1 AND status = $5`

	markShippingSQL = `UPDATE orders
		SET status = $2, dispatched_at = $3, shipping_code = $4, updated_at = now()
		WHERE id = $1 AND status = $5`

	markDeliveredSQL = `UPDATE orders
		SET status = $2, delivered_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4`

	cancelOrderSQL = `UPDATE orders
		SET status = $2, reserved_until = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	restockLinesSQL = `SELECT product_id, quantity FROM order_items
		WHERE order_id = $1 AND product_id IS NOT NULL`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
//
// Creation and cancellation run in a single transaction with the stock
// mutations, so an order can neither commit without its stock nor give
// stock back more than once.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order with its lines and decrements stock for every
// line in one transaction. Any shortage rolls back the whole order and
// surfaces the ledger's *inventory.InsufficientStockError unchanged.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning checkout transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, line := range o.Lines {
		if !line.ProductID.Valid {
			return errors.Errorf("order line %q has no product", line.ID)
		}
		if err := decrementStock(ctx, tx, line.ProductID.UUID, line.Quantity); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.Total, o.Status, o.CreatedAt,
		o.PaidAt, o.ReservedUntil, o.ShippingAddress, o.ContactPhone,
		o.ContactEmail, o.Notes, o.Presential,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for _, line := range o.Lines {
		_, err = tx.Exec(ctx, insertOrderLineSQL,
			line.ID, o.ID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("inserting order line %q: %w", line.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	lineRows, err := r.pool.Query(ctx, listOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing lines for order %q: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("scanning lines for order %q: %w", id, err)
	}
	return &o, nil
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL)
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID)
}

// ListByStatus returns orders in a given state, newest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status) ([]order.Order, error) {
	return r.list(ctx, listOrdersByStatusSQL, status)
}

// ListExpired returns pending orders whose reservation lapsed before the
// given instant, oldest first so the sweep resolves them in age order.
func (r *OrderRepository) ListExpired(ctx context.Context, before time.Time) ([]order.Order, error) {
	return r.list(ctx, listExpiredOrdersSQL, order.StatusPendingPayment, before)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(out))
	byID := make(map[uuid.UUID]*order.Order, len(out))
	for i := range out {
		ids[i] = out[i].ID
		byID[out[i].ID] = &out[i]
	}

	lineRows, err := r.pool.Query(ctx, listOrderLinesForSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	lines, err := pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("scanning order lines: %w", err)
	}
	for _, line := range lines {
		o := byID[line.OrderID]
		o.Lines = append(o.Lines, line)
	}
	return out, nil
}

// MarkPaid flips PENDING_PAYMENT to PAID and records the payment proof,
// clearing the reservation so the sweep never sees a paid order.
func (r *OrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, proofRef string, at time.Time) error {
	return r.transition(ctx, id, markPaidSQL,
		id, order.StatusPaid, at, proofRef, order.StatusPendingPayment)
}

// MarkShipping flips PAID to SHIPPING and records the tracking code.
func (r *OrderRepository) MarkShipping(ctx context.Context, id uuid.UUID, code string, at time.Time) error {
	return r.transition(ctx, id, markShippingSQL,
		id, order.StatusShipping, at, code, order.StatusPaid)
}

// MarkDelivered flips SHIPPING to DELIVERED.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, id, markDeliveredSQL,
		id, order.StatusDelivered, at, order.StatusShipping)
}

// transition runs a conditional state update. Zero rows means the order
// is missing or already left the expected state; the existence probe
// tells which.
func (r *OrderRepository) transition(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("transitioning order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStateConflict
}

// CancelAndRestock flips PENDING_PAYMENT to CANCELLED and credits every
// line's quantity back to stock in the same transaction. The conditional
// flip makes the restock exactly-once: a second caller matches no row
// and gets ErrStateConflict without touching stock.
func (r *OrderRepository) CancelAndRestock(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, cancelOrderSQL, id, order.StatusCancelled, order.StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("cancelling order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", id, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrStateConflict
	}

	// Lines whose product has since been deleted have a NULL reference
	// and nothing to credit.
	lineRows, err := tx.Query(ctx, restockLinesSQL, id)
	if err != nil {
		return fmt.Errorf("listing restock lines for order %q: %w", id, err)
	}
	type credit struct {
		productID uuid.UUID
		qty       int
	}
	credits, err := pgx.CollectRows(lineRows, func(row pgx.CollectableRow) (credit, error) {
		var c credit
		err := row.Scan(&c.productID, &c.qty)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("scanning restock lines for order %q: %w", id, err)
	}

	for _, c := range credits {
		if err := incrementStock(ctx, tx, c.productID, c.qty); err != nil {
			return fmt.Errorf("restocking order %q: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cancel of order %q: %w", id, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt,
		&o.PaidAt, &o.DispatchedAt, &o.DeliveredAt, &o.ReservedUntil,
		&o.ShippingCode, &o.PaymentProof, &o.ShippingAddress,
		&o.ContactPhone, &o.ContactEmail, &o.Notes, &o.Presential,
	)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice)
	return l, err
}
