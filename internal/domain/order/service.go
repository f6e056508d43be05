package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cisasmendi/sistema-stock/internal/domain/audit"
	"github.com/cisasmendi/sistema-stock/internal/domain/auth"
	"github.com/cisasmendi/sistema-stock/internal/domain/cart"
	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

// CheckoutRequest holds the delivery details for an order created from a
// cart.
type CheckoutRequest struct {
	ShippingAddress string
	ContactPhone    string
	Notes           string
}

// SaleItem is one line of a presential sale.
type SaleItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// Service drives the order lifecycle. State transitions are re-checked
// conditionally by the repository, so two concurrent callers can never
// both move the same order out of PENDING_PAYMENT.
type Service struct {
	orders   Repository
	carts    cart.Repository
	products product.Repository
	notifier notify.Sender
	audit    audit.Recorder
	clock    clockwork.Clock
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	carts cart.Repository,
	products product.Repository,
	notifier notify.Sender,
	auditor audit.Recorder,
	clock clockwork.Clock,
) *Service {
	return &Service{
		orders:   orders,
		carts:    carts,
		products: products,
		notifier: notifier,
		audit:    auditor,
		clock:    clock,
	}
}

// CreateFromCart converts the actor's cart into a pending-payment order.
// This is the moment stock actually leaves the pool: the repository
// decrements every line inside one transaction, so a shortage on any
// line aborts the whole checkout with no stock change. On success the
// cart is cleared and a best-effort confirmation is sent.
func (s *Service) CreateFromCart(ctx context.Context, actor auth.Actor, req CheckoutRequest) (*Order, error) {
	c, err := s.carts.GetOrCreate(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	now := s.clock.Now()
	reservedUntil := now.Add(ReservationWindow)
	userID := actor.ID

	o := &Order{
		ID:              uuid.New(),
		UserID:          &userID,
		Status:          StatusPendingPayment,
		CreatedAt:       now,
		ReservedUntil:   &reservedUntil,
		ShippingAddress: req.ShippingAddress,
		ContactPhone:    req.ContactPhone,
		ContactEmail:    actor.Email,
		Notes:           req.Notes,
	}

	for _, item := range c.Items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		// Friendly pre-check; the transaction in Create re-checks
		// conditionally and is authoritative under concurrency.
		if p.Stock < item.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
		line := Line{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   uuid.NullUUID{UUID: item.ProductID, Valid: true},
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
		o.Lines = append(o.Lines, line)
		o.Total = o.Total.Add(line.Subtotal())
	}
	o.Total = o.Total.Round(2)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.carts.DeleteItems(ctx, c.ID); err != nil {
		// The order is already committed; an uncleared cart is an
		// inconvenience, not a failure.
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.Stringer("order_id", o.ID), zap.Error(err))
	}

	s.sendNotification(ctx, o, notify.KindOrderConfirmation)
	s.recordAudit(ctx, actor.ID, audit.ActionOrderCreated, o.ID, "order created from cart")

	return o, nil
}

// CreatePresentialSale registers an in-store sale. It starts directly at
// PAID with no reservation expiry and no owning user.
func (s *Service) CreatePresentialSale(ctx context.Context, actor auth.Actor, items []SaleItem, notes string) (*Order, error) {
	if !actor.IsManager() {
		return nil, auth.ErrForbidden
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	now := s.clock.Now()
	o := &Order{
		ID:         uuid.New(),
		Status:     StatusPaid,
		CreatedAt:  now,
		PaidAt:     &now,
		Notes:      notes,
		Presential: true,
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < item.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
		line := Line{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   uuid.NullUUID{UUID: item.ProductID, Valid: true},
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
		}
		o.Lines = append(o.Lines, line)
		o.Total = o.Total.Add(line.Subtotal())
	}
	o.Total = o.Total.Round(2)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.recordAudit(ctx, actor.ID, audit.ActionPresentialSale, o.ID, "presential sale registered")

	return o, nil
}

// ConfirmPayment moves a pending order to PAID, recording the payment
// proof reference and timestamp.
func (s *Service) ConfirmPayment(ctx context.Context, actor auth.Actor, orderID uuid.UUID, proofRef string) (*Order, error) {
	if !actor.IsManager() {
		return nil, auth.ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPendingPayment {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusPaid}
	}

	now := s.clock.Now()
	if err := s.orders.MarkPaid(ctx, orderID, proofRef, now); err != nil {
		return nil, s.mapTransitionErr(ctx, err, orderID, StatusPaid)
	}
	o.Status = StatusPaid
	o.PaymentProof = proofRef
	o.PaidAt = &now

	s.sendNotification(ctx, o, notify.KindPaymentConfirmed)
	s.recordAudit(ctx, actor.ID, audit.ActionPaymentConfirmed, orderID, "payment confirmed")

	return o, nil
}

// AssignShippingCode moves a paid order to SHIPPING with its tracking
// code and dispatch timestamp.
func (s *Service) AssignShippingCode(ctx context.Context, actor auth.Actor, orderID uuid.UUID, code string) (*Order, error) {
	if !actor.IsManager() {
		return nil, auth.ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPaid {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusShipping}
	}

	now := s.clock.Now()
	if err := s.orders.MarkShipping(ctx, orderID, code, now); err != nil {
		return nil, s.mapTransitionErr(ctx, err, orderID, StatusShipping)
	}
	o.Status = StatusShipping
	o.ShippingCode = code
	o.DispatchedAt = &now

	s.sendNotification(ctx, o, notify.KindShippingCode)
	s.recordAudit(ctx, actor.ID, audit.ActionShippingAssigned, orderID, "shipping code "+code)

	return o, nil
}

// MarkDelivered moves a shipping order to the terminal DELIVERED state.
func (s *Service) MarkDelivered(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*Order, error) {
	if !actor.IsManager() {
		return nil, auth.ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusShipping {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusDelivered}
	}

	now := s.clock.Now()
	if err := s.orders.MarkDelivered(ctx, orderID, now); err != nil {
		return nil, s.mapTransitionErr(ctx, err, orderID, StatusDelivered)
	}
	o.Status = StatusDelivered
	o.DeliveredAt = &now

	s.recordAudit(ctx, actor.ID, audit.ActionOrderDelivered, orderID, "order delivered")

	return o, nil
}

// Cancel lets the owning user cancel an order still pending payment,
// returning every line's quantity to stock exactly once.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID == nil || *o.UserID != userID {
		return auth.ErrForbidden
	}
	if o.Status != StatusPendingPayment {
		return &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	if err := s.orders.CancelAndRestock(ctx, orderID); err != nil {
		return s.mapTransitionErr(ctx, err, orderID, StatusCancelled)
	}

	s.recordAudit(ctx, userID, audit.ActionOrderCancelled, orderID, "cancelled by user")

	return nil
}

// SweepExpiredReservations cancels every pending order whose reservation
// expired, crediting stock back. It is idempotent and safe to run
// concurrently with Cancel and ConfirmPayment: CancelAndRestock
// re-checks the state at apply time, and an order that already left
// PENDING_PAYMENT is skipped without a second stock credit. Per-order
// failures are logged and do not abort the rest of the batch.
func (s *Service) SweepExpiredReservations(ctx context.Context) (int, error) {
	expired, err := s.orders.ListExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "list expired orders")
	}

	lg := zctx.From(ctx)
	swept := 0
	for _, o := range expired {
		switch err := s.orders.CancelAndRestock(ctx, o.ID); {
		case err == nil:
			swept++
			s.recordAudit(ctx, uuid.Nil, audit.ActionOrderCancelled, o.ID, "reservation expired")
		case errors.Is(err, ErrStateConflict):
			// Resolved between selection and apply (paid or cancelled).
		default:
			lg.Error("sweep expired order", zap.Stringer("order_id", o.ID), zap.Error(err))
		}
	}
	return swept, nil
}

// GetByID returns a single order with its lines.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListByStatus returns all orders in the given state, newest first.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	return s.orders.ListByStatus(ctx, status)
}

// mapTransitionErr converts a repository state conflict into the
// user-facing transition error, re-reading the order for its actual
// state.
func (s *Service) mapTransitionErr(ctx context.Context, err error, orderID uuid.UUID, to Status) error {
	if !errors.Is(err, ErrStateConflict) {
		return err
	}
	from := Status("")
	if o, getErr := s.orders.GetByID(ctx, orderID); getErr == nil {
		from = o.Status
	}
	return &InvalidTransitionError{OrderID: orderID, From: from, To: to}
}

func (s *Service) sendNotification(ctx context.Context, o *Order, kind notify.Kind) {
	if o.ContactEmail == "" {
		return
	}
	snap := notify.OrderSnapshot{
		OrderID:      o.ID.String(),
		Total:        o.Total.StringFixed(2),
		ShippingCode: o.ShippingCode,
	}
	if err := s.notifier.Send(ctx, o.ContactEmail, kind, snap); err != nil {
		zctx.From(ctx).Warn("send notification",
			zap.String("kind", string(kind)),
			zap.Stringer("order_id", o.ID),
			zap.Error(err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, orderID uuid.UUID, detail string) {
	e := audit.Event{
		ActorID:    actorID,
		Action:     action,
		EntityType: "order",
		EntityID:   orderID.String(),
		Detail:     detail,
	}
	if err := s.audit.Record(ctx, e); err != nil {
		zctx.From(ctx).Warn("record audit event",
			zap.String("action", action), zap.Error(err))
	}
}
