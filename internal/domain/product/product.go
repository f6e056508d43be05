package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrNameTaken is returned when creating or renaming a product to a name
// that is already in use.
var ErrNameTaken = errors.New("product name already in use")

// Product is a catalog item. Stock is mutated only through the inventory
// ledger; catalog operations never touch it directly.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	MinStock    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LowStock reports whether the product is at or below its minimum stock
// threshold.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// Repository defines catalog persistence operations.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id uuid.UUID) error
}
