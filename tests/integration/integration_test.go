// Package integration exercises the postgres repositories end to end:
// checkout decrements stock transactionally, cancellation restocks
// exactly once, and the expiry sweep resolves overdue reservations.
//
// The test starts a throwaway PostgreSQL container; set
// INTEGRATION_TESTS=1 to run it.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cisasmendi/sistema-stock/internal/domain/audit"
	"github.com/cisasmendi/sistema-stock/internal/domain/auth"
	"github.com/cisasmendi/sistema-stock/internal/domain/cart"
	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
	"github.com/cisasmendi/sistema-stock/internal/domain/order"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
	"github.com/cisasmendi/sistema-stock/internal/repository"
)

func TestOrderLifecycle(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stock"),
		tcpostgres.WithUsername("stock"),
		tcpostgres.WithPassword("stock"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := repository.NewPool(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, repository.RunMigrations(ctx, pool))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	ledger := repository.NewStockLedger(pool)

	cartService := cart.NewService(cartRepo, productRepo, clock)
	orderService := order.NewService(orderRepo, cartRepo, productRepo, notify.Nop{}, audit.Nop{}, clock)

	p := &product.Product{
		ID:    uuid.New(),
		Name:  "Shure SM58",
		Price: decimal.RequireFromString("99.00"),
		Stock: 5,
	}
	require.NoError(t, productRepo.Create(ctx, p))

	client := auth.Actor{ID: uuid.New(), Email: "client@example.com", Role: auth.RoleClient}

	t.Run("checkout decrements stock and clears cart", func(t *testing.T) {
		_, err := cartService.AddItem(ctx, client.ID, p.ID, 2)
		require.NoError(t, err)

		o, err := orderService.CreateFromCart(ctx, client, order.CheckoutRequest{
			ShippingAddress: "Av. Corrientes 1234",
		})
		require.NoError(t, err)
		require.Equal(t, order.StatusPendingPayment, o.Status)
		require.Equal(t, "198.00", o.Total.StringFixed(2))

		stock, err := ledger.CurrentStock(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 3, stock)

		c, err := cartService.Get(ctx, client.ID)
		require.NoError(t, err)
		require.Empty(t, c.Items)

		require.NoError(t, orderService.Cancel(ctx, client.ID, o.ID))

		stock, err = ledger.CurrentStock(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 5, stock)

		// A second cancel finds the order already resolved.
		err = orderService.Cancel(ctx, client.ID, o.ID)
		var transErr *order.InvalidTransitionError
		require.ErrorAs(t, err, &transErr)
	})

	t.Run("checkout refuses shortage atomically", func(t *testing.T) {
		scarce := &product.Product{
			ID:    uuid.New(),
			Name:  "Korg Minilogue",
			Price: decimal.RequireFromString("549.99"),
			Stock: 1,
		}
		require.NoError(t, productRepo.Create(ctx, scarce))

		_, err := cartService.AddItem(ctx, client.ID, p.ID, 1)
		require.NoError(t, err)
		// Reserving in the cart is allowed up to current stock; deplete
		// the scarce product behind the cart's back.
		_, err = cartService.AddItem(ctx, client.ID, scarce.ID, 1)
		require.NoError(t, err)
		require.NoError(t, ledger.Decrement(ctx, scarce.ID, 1))

		_, err = orderService.CreateFromCart(ctx, client, order.CheckoutRequest{})
		var stockErr *inventory.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		require.Equal(t, scarce.ID, stockErr.ProductID)

		// The other line's stock is untouched.
		stock, err := ledger.CurrentStock(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 5, stock)

		require.NoError(t, ledger.Increment(ctx, scarce.ID, 1))
		require.NoError(t, cartService.Clear(ctx, client.ID))
	})

	t.Run("sweep cancels expired reservations", func(t *testing.T) {
		_, err := cartService.AddItem(ctx, client.ID, p.ID, 4)
		require.NoError(t, err)

		o, err := orderService.CreateFromCart(ctx, client, order.CheckoutRequest{})
		require.NoError(t, err)

		stock, err := ledger.CurrentStock(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stock)

		clock.Advance(order.ReservationWindow + time.Minute)

		swept, err := orderService.SweepExpiredReservations(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, swept)

		got, err := orderService.GetByID(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, order.StatusCancelled, got.Status)

		stock, err = ledger.CurrentStock(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 5, stock)

		// Idempotent: nothing left to sweep.
		swept, err = orderService.SweepExpiredReservations(ctx)
		require.NoError(t, err)
		require.Zero(t, swept)
	})

	t.Run("concurrent decrements never oversell", func(t *testing.T) {
		const buyers = 8
		scarce := &product.Product{
			ID:    uuid.New(),
			Name:  "Moog Subsequent 37",
			Price: decimal.RequireFromString("1799.00"),
			Stock: buyers - 1,
		}
		require.NoError(t, productRepo.Create(ctx, scarce))

		errs := make(chan error, buyers)
		var wg sync.WaitGroup
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- ledger.Decrement(ctx, scarce.ID, 1)
			}()
		}
		wg.Wait()
		close(errs)

		// One buyer too many: exactly one decrement must lose.
		var refused int
		for err := range errs {
			if err == nil {
				continue
			}
			var stockErr *inventory.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			refused++
		}
		require.Equal(t, 1, refused)

		stock, err := ledger.CurrentStock(ctx, scarce.ID)
		require.NoError(t, err)
		require.Zero(t, stock)
	})

	t.Run("full forward path", func(t *testing.T) {
		manager := auth.Actor{ID: uuid.New(), Email: "boss@example.com", Role: auth.RoleManager}

		_, err := cartService.AddItem(ctx, client.ID, p.ID, 1)
		require.NoError(t, err)
		o, err := orderService.CreateFromCart(ctx, client, order.CheckoutRequest{})
		require.NoError(t, err)

		o, err = orderService.ConfirmPayment(ctx, manager, o.ID, "transfer-001")
		require.NoError(t, err)
		require.Equal(t, order.StatusPaid, o.Status)

		o, err = orderService.AssignShippingCode(ctx, manager, o.ID, "TRACK-42")
		require.NoError(t, err)
		require.Equal(t, order.StatusShipping, o.Status)

		o, err = orderService.MarkDelivered(ctx, manager, o.ID)
		require.NoError(t, err)
		require.Equal(t, order.StatusDelivered, o.Status)

		// A paid order is never swept.
		clock.Advance(order.ReservationWindow * 2)
		swept, err := orderService.SweepExpiredReservations(ctx)
		require.NoError(t, err)
		require.Zero(t, swept)
	})
}
