package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, stock, min_stock, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY name`

	listLowStockSQL = `SELECT ` + productColumns + ` FROM products
		WHERE stock <= min_stock ORDER BY name`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (id, name, description, price, stock, min_stock)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// Catalog updates never touch the stock column; that belongs to the
	// ledger statements below.
	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, min_stock = $5, updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	currentStockSQL = `SELECT stock FROM products WHERE id = $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListLowStock returns products at or below their minimum stock threshold.
func (r *ProductRepository) ListLowStock(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listLowStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Create inserts a new product with its opening stock count.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.MinStock,
	)
	if isUniqueViolation(err) {
		return product.ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update persists catalog fields. Stock is deliberately excluded.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.MinStock,
	)
	if isUniqueViolation(err) {
		return product.ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Order lines referencing it keep their name
// snapshot; their product reference becomes NULL.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price,
		&p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ inventory.Ledger = (*StockLedger)(nil)

// StockLedger implements inventory.Ledger with single conditional row
// updates, so concurrent mutations on the same product serialize on the
// row without a read-then-write race.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Decrement atomically subtracts qty, failing when stock is short.
func (l *StockLedger) Decrement(ctx context.Context, productID uuid.UUID, qty int) error {
	return decrementStock(ctx, l.pool, productID, qty)
}

// Increment atomically adds qty back to stock.
func (l *StockLedger) Increment(ctx context.Context, productID uuid.UUID, qty int) error {
	return incrementStock(ctx, l.pool, productID, qty)
}

// CurrentStock reads the committed stock count.
func (l *StockLedger) CurrentStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var stock int
	err := l.pool.QueryRow(ctx, currentStockSQL, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, product.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading stock for product %q: %w", productID, err)
	}
	return stock, nil
}

// decrementStock runs the conditional decrement against q, which may be
// a pool or an open transaction. A zero-row update means either the
// product is gone or stock was short; the follow-up read tells which.
func decrementStock(ctx context.Context, q querier, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.Errorf("decrement quantity must be positive, got %d", qty)
	}

	tag, err := q.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var available int
	err = q.QueryRow(ctx, currentStockSQL, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return product.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading stock for product %q: %w", productID, err)
	}
	return &inventory.InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

func incrementStock(ctx context.Context, q querier, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.Errorf("increment quantity must be positive, got %d", qty)
	}

	tag, err := q.Exec(ctx, incrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}
