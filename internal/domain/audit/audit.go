// Package audit defines the fire-and-forget operation log consumed by the
// cart and order services. Failures to record are logged by callers and
// never fail the originating operation.
package audit

import (
	"context"

	"github.com/google/uuid"
)

// Actions recorded by the order and cart flows.
const (
	ActionOrderCreated     = "ORDER_CREATED"
	ActionPresentialSale   = "PRESENTIAL_SALE"
	ActionPaymentConfirmed = "PAYMENT_CONFIRMED"
	ActionShippingAssigned = "SHIPPING_ASSIGNED"
	ActionOrderDelivered   = "ORDER_DELIVERED"
	ActionOrderCancelled   = "ORDER_CANCELLED"
	ActionStockAdjusted    = "STOCK_ADJUSTED"
)

// Event is a single audited operation.
type Event struct {
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Detail     string
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop is a Recorder that discards every event. Useful in tests.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
