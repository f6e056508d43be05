// Package order implements the order lifecycle engine: checkout from a
// cart, presential sales, the payment/shipping/delivery state machine
// and reservation expiry for unpaid orders.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationWindow is how long a non-presential order may stay unpaid
// before the sweeper cancels it and returns its stock.
const ReservationWindow = 72 * time.Hour

// Status is the lifecycle state of an order. The values are part of the
// external contract and must not change.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusShipping       Status = "SHIPPING"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// validNext encodes the forward-only transition graph.
var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:           {StatusShipping: true},
	StatusShipping:       {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// ParseStatus returns the Status for its wire value, reporting whether
// the value names a known state.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	return validNext[s][next]
}

// Terminal reports whether no transition leaves this state.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrEmptyItems is returned for a presential sale with no items.
	ErrEmptyItems = errors.New("items required")
	// ErrStateConflict is returned by repositories when a conditional
	// transition matched no row because the order already left the
	// expected state. Services map it to InvalidTransitionError or, in
	// the sweep, treat it as "already resolved".
	ErrStateConflict = errors.New("order state changed concurrently")
)

// InvalidTransitionError indicates the order is not in the state the
// requested action needs.
type InvalidTransitionError struct {
	OrderID uuid.UUID
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Line is a single order line. Product name and unit price are
// snapshotted at creation so later catalog edits or deletions never
// change a committed order.
type Line struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.NullUUID // becomes invalid if the product is later deleted
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal is quantity times the snapshotted unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a committed purchase. UserID is nil for presential sales.
// ReservedUntil is set only for non-presential orders and drives the
// expiry sweep while the order is pending payment.
type Order struct {
	ID              uuid.UUID
	UserID          *uuid.UUID
	Lines           []Line
	Total           decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	PaidAt          *time.Time
	DispatchedAt    *time.Time
	DeliveredAt     *time.Time
	ReservedUntil   *time.Time
	ShippingCode    string
	PaymentProof    string
	ShippingAddress string
	ContactPhone    string
	ContactEmail    string
	Notes           string
	Presential      bool
}

// Repository defines order persistence.
//
// Create must decrement product stock for every line and insert the
// order atomically: a shortage on any line aborts the whole operation
// with *inventory.InsufficientStockError and no stock change.
//
// The Mark* methods and CancelAndRestock apply conditional transitions:
// the state check and the update are one statement (or one transaction),
// and ErrStateConflict is returned when the order already left the
// expected state. CancelAndRestock additionally credits every line's
// quantity back to stock in the same transaction, so a cancel can never
// restock twice.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	// ListExpired returns orders still pending payment whose reservation
	// expired before the given instant.
	ListExpired(ctx context.Context, before time.Time) ([]Order, error)

	MarkPaid(ctx context.Context, id uuid.UUID, proofRef string, at time.Time) error
	MarkShipping(ctx context.Context, id uuid.UUID, code string, at time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	CancelAndRestock(ctx context.Context, id uuid.UUID) error
}
