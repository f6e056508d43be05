// Package inventory defines the stock ledger: the single authority over
// per-product stock counts. Every mutating path (checkout, presential
// sale, cancellation, sweep, admin adjustment) goes through the same
// conditional update discipline so stock can never go negative and
// concurrent buyers cannot both take the last unit.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsufficientStockError indicates a decrement would take stock below zero.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Ledger mutates and reads per-product stock counts.
//
// Decrement subtracts qty atomically and fails with
// *InsufficientStockError if the current stock is lower than qty.
// Increment adds qty unconditionally; callers guarantee the quantity came
// from a prior decrement. Both must be applied as single conditional
// row updates, never as a read-then-write pair.
type Ledger interface {
	Decrement(ctx context.Context, productID uuid.UUID, qty int) error
	Increment(ctx context.Context, productID uuid.UUID, qty int) error
	CurrentStock(ctx context.Context, productID uuid.UUID) (int, error)
}
