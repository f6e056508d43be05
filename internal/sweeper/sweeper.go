// Package sweeper runs the periodic reservation cleanup: expired cart
// items are dropped and expired pending orders are cancelled with their
// stock returned. Every pass is idempotent, so overlapping runs (or a
// second process) resolve each reservation at most once.
package sweeper

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// CartSweeper drops expired cart reservations.
type CartSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// OrderSweeper cancels expired pending orders and restocks them.
type OrderSweeper interface {
	SweepExpiredReservations(ctx context.Context) (int, error)
}

// Sweeper drives both cleanups on a fixed interval.
type Sweeper struct {
	carts    CartSweeper
	orders   OrderSweeper
	clock    clockwork.Clock
	interval time.Duration
}

// New returns a Sweeper running both cleanups every interval.
func New(carts CartSweeper, orders OrderSweeper, clock clockwork.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{
		carts:    carts,
		orders:   orders,
		clock:    clock,
		interval: interval,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

// sweep runs the two halves independently: a failure in one never stops
// the other.
func (s *Sweeper) sweep(ctx context.Context) {
	lg := zctx.From(ctx)

	removed, err := s.carts.SweepExpired(ctx)
	if err != nil {
		lg.Error("Cart sweep failed", zap.Error(err))
	} else if removed > 0 {
		lg.Info("Removed expired cart items", zap.Int64("count", removed))
	}

	cancelled, err := s.orders.SweepExpiredReservations(ctx)
	if err != nil {
		lg.Error("Order sweep failed", zap.Error(err))
	} else if cancelled > 0 {
		lg.Info("Cancelled expired orders", zap.Int("count", cancelled))
	}
}
