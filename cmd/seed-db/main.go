// Command seed-db loads a demo catalog into the database so the API can
// be exercised locally without manual product creation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cisasmendi/sistema-stock/internal/repository"
)

type seedProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	MinStock    int
}

var demoCatalog = []seedProduct{
	{"Fender Stratocaster", "Electric guitar, sunburst finish", decimal.RequireFromString("1899.00"), 4, 1},
	{"Gibson Les Paul Standard", "Electric guitar, heritage cherry", decimal.RequireFromString("2499.99"), 2, 1},
	{"Yamaha C40 Classical", "Nylon string classical guitar", decimal.RequireFromString("159.90"), 25, 5},
	{"Roland TD-1DMK", "Electronic drum kit", decimal.RequireFromString("699.00"), 6, 2},
	{"Shure SM58", "Dynamic vocal microphone", decimal.RequireFromString("99.00"), 40, 10},
	{"Boss DS-1 Distortion", "Guitar effects pedal", decimal.RequireFromString("62.50"), 15, 3},
	{"Korg Minilogue", "Polyphonic analog synthesizer", decimal.RequireFromString("549.99"), 3, 1},
	{"Ernie Ball Regular Slinky", "Electric guitar strings, 10-46", decimal.RequireFromString("7.99"), 120, 30},
}

const upsertProductSQL = `INSERT INTO products (id, name, description, price, stock, min_stock)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (name) DO UPDATE
	SET description = EXCLUDED.description,
	    price = EXCLUDED.price,
	    min_stock = EXCLUDED.min_stock,
	    updated_at = now()`

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting demo catalog", slog.Int("count", len(demoCatalog)))

	// Existing stock is left alone on conflict so reseeding never undoes
	// sales.
	for _, p := range demoCatalog {
		_, err := pool.Exec(ctx, upsertProductSQL,
			uuid.New(), p.Name, p.Description, p.Price, p.Stock, p.MinStock,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Name)
		}
		slog.Info("upserted product", slog.String("name", p.Name))
	}

	return nil
}
