package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cisasmendi/sistema-stock/internal/domain/auth"
	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

// Service manages cart reservations. Stock checks are made against the
// current committed stock because cart items do not pre-decrement it; the
// authoritative check happens again at checkout inside the order
// transaction.
type Service struct {
	carts    Repository
	products product.Repository
	clock    clockwork.Clock
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, clock clockwork.Clock) *Service {
	return &Service{
		carts:    carts,
		products: products,
		clock:    clock,
	}
}

// Get returns the user's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	return s.carts.GetOrCreate(ctx, userID)
}

// AddItem reserves qty units of a product in the user's cart. If the
// product is already in the cart the quantities are summed and the stock
// check runs against the combined quantity. Either way the item's
// reservation expiry is reset to now plus the reservation window.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing, err := s.carts.FindItem(ctx, c.ID, productID)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return nil, errors.Wrap(err, "find cart item")
	}

	reservedUntil := s.clock.Now().Add(ReservationWindow)

	if existing != nil {
		combined := existing.Quantity + qty
		if p.Stock < combined {
			return nil, &inventory.InsufficientStockError{
				ProductID: productID,
				Requested: combined,
				Available: p.Stock,
			}
		}
		if err := s.carts.UpdateItem(ctx, existing.ID, combined, reservedUntil); err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
		return s.carts.GetOrCreate(ctx, userID)
	}

	if p.Stock < qty {
		return nil, &inventory.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: p.Stock,
		}
	}

	item := &Item{
		ID:            uuid.New(),
		CartID:        c.ID,
		ProductID:     productID,
		Quantity:      qty,
		UnitPrice:     p.Price,
		ReservedUntil: reservedUntil,
	}
	if err := s.carts.InsertItem(ctx, item); err != nil {
		return nil, errors.Wrap(err, "insert cart item")
	}

	return s.carts.GetOrCreate(ctx, userID)
}

// UpdateItem sets a new quantity on an existing cart item, re-checking
// stock and resetting the reservation expiry.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	c, item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Stock < qty {
		return nil, &inventory.InsufficientStockError{
			ProductID: item.ProductID,
			Requested: qty,
			Available: p.Stock,
		}
	}

	reservedUntil := s.clock.Now().Add(ReservationWindow)
	if err := s.carts.UpdateItem(ctx, item.ID, qty, reservedUntil); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}

	return s.carts.GetOrCreate(ctx, c.UserID)
}

// RemoveItem deletes a single item from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, error) {
	_, item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItem(ctx, item.ID); err != nil {
		return nil, errors.Wrap(err, "delete cart item")
	}
	return s.carts.GetOrCreate(ctx, userID)
}

// Clear removes every item from the user's cart.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	return s.carts.DeleteItems(ctx, c.ID)
}

// SweepExpired deletes every cart item whose reservation expired. It has
// no stock side effect: cart reservations never held committed stock.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.carts.DeleteExpired(ctx, s.clock.Now())
}

// ownedItem loads an item and verifies it belongs to the user's cart.
func (s *Service) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, *Item, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get cart")
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.CartID != c.ID {
		return nil, nil, auth.ErrForbidden
	}
	return c, item, nil
}
