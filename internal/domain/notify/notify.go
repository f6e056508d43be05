// Package notify defines the outbound customer notification contract.
// Sends are best-effort: a failed notification never rolls back the
// state transition that triggered it.
package notify

import "context"

// Kind selects the notification template.
type Kind string

const (
	// KindOrderConfirmation is sent after checkout.
	KindOrderConfirmation Kind = "order_confirmation"
	// KindPaymentConfirmed is sent when a manager confirms payment.
	KindPaymentConfirmed Kind = "payment_confirmed"
	// KindShippingCode is sent when a shipping code is assigned.
	KindShippingCode Kind = "shipping_code"
)

// OrderSnapshot is the subset of order data templates need. It is a copy;
// senders must not reach back into the domain.
type OrderSnapshot struct {
	OrderID      string
	Total        string
	ShippingCode string
}

// Sender delivers a notification to a destination address.
type Sender interface {
	Send(ctx context.Context, to string, kind Kind, o OrderSnapshot) error
}

// Nop is a Sender that does nothing. Useful in tests.
type Nop struct{}

func (Nop) Send(context.Context, string, Kind, OrderSnapshot) error { return nil }
