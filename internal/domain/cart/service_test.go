package cart

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisasmendi/sistema-stock/internal/domain/auth"
	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[uuid.UUID]*product.Product
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error)         { return nil, nil }
func (m *mockProductRepo) ListLowStock(context.Context) ([]product.Product, error) { return nil, nil }
func (m *mockProductRepo) Create(context.Context, *product.Product) error          { return nil }
func (m *mockProductRepo) Update(context.Context, *product.Product) error          { return nil }
func (m *mockProductRepo) Delete(context.Context, uuid.UUID) error                 { return nil }

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type memCartRepo struct {
	carts map[uuid.UUID]*Cart // keyed by user ID
	items map[uuid.UUID]*Item
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{
		carts: make(map[uuid.UUID]*Cart),
		items: make(map[uuid.UUID]*Item),
	}
}

func (m *memCartRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		c = &Cart{ID: uuid.New(), UserID: userID}
		m.carts[userID] = c
	}
	out := &Cart{ID: c.ID, UserID: c.UserID}
	for _, it := range m.items {
		if it.CartID == c.ID {
			out.Items = append(out.Items, *it)
		}
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID.String() < out.Items[j].ID.String() })
	return out, nil
}

func (m *memCartRepo) GetItem(_ context.Context, itemID uuid.UUID) (*Item, error) {
	it, ok := m.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memCartRepo) FindItem(_ context.Context, cartID, productID uuid.UUID) (*Item, error) {
	for _, it := range m.items {
		if it.CartID == cartID && it.ProductID == productID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, ErrItemNotFound
}

func (m *memCartRepo) InsertItem(_ context.Context, item *Item) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memCartRepo) UpdateItem(_ context.Context, itemID uuid.UUID, quantity int, reservedUntil time.Time) error {
	it, ok := m.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	it.Quantity = quantity
	it.ReservedUntil = reservedUntil
	return nil
}

func (m *memCartRepo) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	delete(m.items, itemID)
	return nil
}

func (m *memCartRepo) DeleteItems(_ context.Context, cartID uuid.UUID) error {
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memCartRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, it := range m.items {
		if it.ReservedUntil.Before(before) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// --- Helpers ---

func newTestProduct(name string, price string, stock int) *product.Product {
	return &product.Product{
		ID:    uuid.New(),
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func newTestService(products ...*product.Product) (*Service, *memCartRepo, *clockwork.FakeClock) {
	byID := make(map[uuid.UUID]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	repo := newMemCartRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewService(repo, &mockProductRepo{byID: byID}, clock), repo, clock
}

// --- Tests ---

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItem_ProductNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestAddItem_InsufficientStock(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 2)
	svc, _, _ := newTestService(p)

	_, err := svc.AddItem(context.Background(), uuid.New(), p.ID, 3)

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
}

func TestAddItem_SnapshotsPriceAndSetsExpiry(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, clock := newTestService(p)
	userID := uuid.New()

	c, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	item := c.Items[0]
	assert.True(t, decimal.RequireFromString("8.50").Equal(item.UnitPrice))
	assert.Equal(t, clock.Now().Add(ReservationWindow), item.ReservedUntil)
	assert.True(t, decimal.RequireFromString("17.00").Equal(c.Total()))
}

func TestAddItem_MergesQuantities(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 5)
	svc, _, _ := newTestService(p)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	c, err := svc.AddItem(context.Background(), userID, p.ID, 3)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
}

func TestAddItem_CombinedQuantityExceedsStock(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 4)
	svc, _, _ := newTestService(p)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	// 2 already reserved; 3 more makes 5 against stock 4.
	_, err = svc.AddItem(context.Background(), userID, p.ID, 3)

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Requested)
}

func TestAddItem_TouchResetsExpiry(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, clock := newTestService(p)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)

	c, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, clock.Now().Add(ReservationWindow), c.Items[0].ReservedUntil)
}

func TestUpdateItem_Forbidden(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, _ := newTestService(p)
	owner := uuid.New()

	c, err := svc.AddItem(context.Background(), owner, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.UpdateItem(context.Background(), uuid.New(), c.Items[0].ID, 2)
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestUpdateItem_RechecksStock(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 3)
	svc, _, _ := newTestService(p)
	userID := uuid.New()

	c, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	_, err = svc.UpdateItem(context.Background(), userID, c.Items[0].ID, 4)

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
}

func TestUpdateItem_ResetsExpiry(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, clock := newTestService(p)
	userID := uuid.New()

	c, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)

	c, err = svc.UpdateItem(context.Background(), userID, c.Items[0].ID, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, clock.Now().Add(ReservationWindow), c.Items[0].ReservedUntil)
}

func TestRemoveItem(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, _ := newTestService(p)
	userID := uuid.New()

	c, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)

	c, err = svc.RemoveItem(context.Background(), userID, c.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestRemoveItem_Forbidden(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, _ := newTestService(p)
	owner := uuid.New()

	c, err := svc.AddItem(context.Background(), owner, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.RemoveItem(context.Background(), uuid.New(), c.Items[0].ID)
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestClear(t *testing.T) {
	p1 := newTestProduct("Yerba", "8.50", 10)
	p2 := newTestProduct("Mate", "25.00", 10)
	svc, _, _ := newTestService(p1, p2)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, p1.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), userID, p2.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(context.Background(), userID))

	c, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestSweepExpired_DeletesOnlyExpiredItems(t *testing.T) {
	p1 := newTestProduct("Yerba", "8.50", 10)
	p2 := newTestProduct("Mate", "25.00", 10)
	svc, _, clock := newTestService(p1, p2)
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.AddItem(context.Background(), alice, p1.ID, 1)
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	_, err = svc.AddItem(context.Background(), bob, p2.ID, 1)
	require.NoError(t, err)

	// Alice's reservation is 48h old, Bob's is fresh. Advance past
	// Alice's window but not Bob's.
	clock.Advance(ReservationWindow - 24*time.Hour)

	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c, err := svc.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c, err = svc.Get(context.Background(), bob)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)

	// Stock is untouched: cart reservations never held committed stock.
	assert.Equal(t, 10, p1.Stock)
}

func TestSweepExpired_Idempotent(t *testing.T) {
	p := newTestProduct("Yerba", "8.50", 10)
	svc, _, clock := newTestService(p)

	_, err := svc.AddItem(context.Background(), uuid.New(), p.ID, 1)
	require.NoError(t, err)

	clock.Advance(ReservationWindow + time.Hour)

	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
