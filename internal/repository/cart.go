package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cisasmendi/sistema-stock/internal/domain/cart"
)

const (
	ensureCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	getCartByUserSQL = `SELECT id, user_id, updated_at FROM carts WHERE user_id = $1`

	cartItemColumns = `ci.id, ci.cart_id, ci.product_id, p.name, ci.quantity, ci.unit_price, ci.reserved_until`

	listCartItemsSQL = `SELECT ` + cartItemColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 ORDER BY p.name`

	getCartItemSQL = `SELECT ` + cartItemColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.id = $1`

	findCartItemSQL = `SELECT ` + cartItemColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 AND ci.product_id = $2`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price, reserved_until)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateCartItemSQL = `UPDATE cart_items SET quantity = $2, reserved_until = $3 WHERE id = $1`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE id = $1`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	deleteExpiredCartItemsSQL = `DELETE FROM cart_items WHERE reserved_until < $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the user's cart with its items, creating the cart
// row on first access. The insert-on-conflict keeps concurrent first
// accesses converging on a single row.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	if _, err := r.pool.Exec(ctx, ensureCartSQL, uuid.New(), userID); err != nil {
		return nil, fmt.Errorf("ensuring cart for user %q: %w", userID, err)
	}

	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartByUserSQL, userID).Scan(&c.ID, &c.UserID, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items for cart %q: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("scanning cart items for cart %q: %w", c.ID, err)
	}
	return &c, nil
}

// GetItem returns a single cart item by its identifier.
func (r *CartRepository) GetItem(ctx context.Context, itemID uuid.UUID) (*cart.Item, error) {
	rows, err := r.pool.Query(ctx, getCartItemSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting cart item %q: %w", itemID, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting cart item %q: %w", itemID, err)
	}
	return &item, nil
}

// FindItem returns the cart's item for a product, if any.
func (r *CartRepository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*cart.Item, error) {
	rows, err := r.pool.Query(ctx, findCartItemSQL, cartID, productID)
	if err != nil {
		return nil, fmt.Errorf("finding cart item: %w", err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("finding cart item: %w", err)
	}
	return &item, nil
}

// InsertItem adds a new reservation row to a cart.
func (r *CartRepository) InsertItem(ctx context.Context, item *cart.Item) error {
	_, err := r.pool.Exec(ctx, insertCartItemSQL,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.ReservedUntil,
	)
	if err != nil {
		return fmt.Errorf("inserting cart item %q: %w", item.ID, err)
	}
	r.touch(ctx, item.CartID)
	return nil
}

// UpdateItem sets a new quantity and reservation expiry on an item.
func (r *CartRepository) UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int, reservedUntil time.Time) error {
	tag, err := r.pool.Exec(ctx, updateCartItemSQL, itemID, quantity, reservedUntil)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes a single item.
func (r *CartRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, itemID)
	if err != nil {
		return fmt.Errorf("deleting cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// DeleteItems empties a cart.
func (r *CartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, deleteCartItemsSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	r.touch(ctx, cartID)
	return nil
}

// DeleteExpired removes every item whose reservation expired before the
// given instant. No stock side effect: cart rows never held committed
// stock.
func (r *CartRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteExpiredCartItemsSQL, before)
	if err != nil {
		return 0, fmt.Errorf("deleting expired cart items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// touch bumps the cart's updated_at; failures are irrelevant to the
// caller's operation.
func (r *CartRepository) touch(ctx context.Context, cartID uuid.UUID) {
	_, _ = r.pool.Exec(ctx, touchCartSQL, cartID)
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var item cart.Item
	err := row.Scan(
		&item.ID, &item.CartID, &item.ProductID, &item.ProductName,
		&item.Quantity, &item.UnitPrice, &item.ReservedUntil,
	)
	return item, err
}
