// Package cart implements the per-user shopping cart with timed stock
// reservations. Cart items snapshot the product price at add time and
// carry a reservation expiry; they never decrement product stock — stock
// leaves the pool only when the cart is converted into an order.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationWindow is how long a cart item holds its reservation before
// the sweeper may delete it. Every touch (add or quantity update) resets
// the clock.
const ReservationWindow = 72 * time.Hour

var (
	// ErrItemNotFound is returned when a cart item does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Cart holds a user's reserved items. One cart exists per user, created
// lazily on first access and never deleted while the user exists.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	UpdatedAt time.Time
	Items     []Item
}

// Total is the sum of all item subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Item is a single product reservation inside a cart.
type Item struct {
	ID            uuid.UUID
	CartID        uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
	ReservedUntil time.Time
}

// Subtotal is quantity times the snapshotted unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines cart persistence. GetOrCreate must be safe to call
// concurrently for the same user and always yields the same cart row.
type Repository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error)
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*Item, error)
	InsertItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int, reservedUntil time.Time) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	// DeleteExpired removes every item whose reservation expired before
	// the given instant and reports how many rows went away.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
