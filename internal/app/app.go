// Package app wires configuration, storage, domain services, the HTTP
// server and the reservation sweeper into a running process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cisasmendi/sistema-stock/internal/domain/cart"
	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
	"github.com/cisasmendi/sistema-stock/internal/domain/order"
	"github.com/cisasmendi/sistema-stock/internal/httpapi"
	"github.com/cisasmendi/sistema-stock/internal/notifier"
	"github.com/cisasmendi/sistema-stock/internal/repository"
	"github.com/cisasmendi/sistema-stock/internal/sweeper"
	"github.com/cisasmendi/sistema-stock/pkg/health"
)

// Run creates all dependencies and runs the HTTP server and the sweeper
// until ctx is cancelled. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	// Catalog cache, optional.
	cache, err := httpapi.NewProductCache(ctx, cfg.RedisAddr)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = cache.Close() }()
	if cache != nil {
		lg.Info("Catalog cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Notification sender: SES when configured, log-only otherwise.
	var sender notify.Sender
	if cfg.Email.Sender != "" {
		sender, err = notifier.NewSESSender(ctx, notifier.SESConfig{
			Region:          cfg.Email.AWSRegion,
			AccessKeyID:     cfg.Email.AWSAccessKeyID,
			SecretAccessKey: cfg.Email.AWSSecretKey,
			SenderEmail:     cfg.Email.Sender,
		})
		if err != nil {
			return errors.Wrap(err, "create ses sender")
		}
	} else {
		sender = notifier.NewLogSender(lg.Named("notify"))
	}

	// Repositories and domain services.
	clock := clockwork.NewRealClock()
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	ledger := repository.NewStockLedger(pool)
	auditor := repository.NewAuditRecorder(pool)

	cartService := cart.NewService(cartRepo, productRepo, clock)
	orderService := order.NewService(orderRepo, cartRepo, productRepo, sender, auditor, clock)

	// HTTP server.
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Addr:            cfg.Addr,
			JWTSecret:       []byte(cfg.JWTSecret),
			AllowOrigins:    cfg.CORS.Origins,
			ShutdownTimeout: cfg.Graceful.ShutdownTimeout,
		},
		lg,
		healthSvc,
		httpapi.NewProductHandler(productRepo, ledger, auditor, cache),
		httpapi.NewCartHandler(cartService),
		httpapi.NewOrderHandler(orderService),
	)

	sweep := sweeper.New(cartService, orderService, clock, cfg.Sweep.Interval)

	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.Run(gCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Sweeper started", zap.Duration("interval", cfg.Sweep.Interval))
		if err := sweep.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "sweeper")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)
		return nil
	})

	return g.Wait()
}
