// Command catalog-ingest bulk-loads supplier feed files into the product
// catalog. Feeds are gzip-compressed, semicolon-separated lines of
// name;description;price;stock. Files are streamed concurrently; a bloom
// filter keeps duplicate names across feeds from hitting the database
// more than once per run.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cisasmendi/sistema-stock/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	fieldCount    = 4
	lineBuffer    = 1024
)

const upsertProductSQL = `INSERT INTO products (id, name, description, price, stock, min_stock)
	VALUES ($1, $2, $3, $4, $5, 0)
	ON CONFLICT (name) DO UPDATE
	SET description = EXCLUDED.description,
	    price = EXCLUDED.price,
	    stock = products.stock + EXCLUDED.stock,
	    updated_at = now()`

// feedLine is one parsed catalog entry.
type feedLine struct {
	name        string
	description string
	price       decimal.Decimal
	stock       int
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog*.gz feed files")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog*.gz files in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("ingesting feeds", slog.Int("files", len(files)))

	write := func(ctx context.Context, lines <-chan feedLine) error {
		return writeCatalog(ctx, pool, lines)
	}
	if err := ingest(ctx, files, write); err != nil {
		return errors.Wrap(err, "ingest feeds")
	}
	return nil
}

// ingest fans the feed files into one channel consumed by a single
// writer, so the bloom filter and the pool see one goroutine. Readers
// and writer share an errgroup: a failure on either side cancels the
// other instead of leaving it blocked on the channel.
func ingest(ctx context.Context, files []string, write func(context.Context, <-chan feedLine) error) error {
	lines := make(chan feedLine, lineBuffer)

	g, gCtx := errgroup.WithContext(ctx)

	readers, readCtx := errgroup.WithContext(gCtx)
	for i, f := range files {
		readers.Go(streamFeed(readCtx, i, f, lines))
	}
	g.Go(func() error {
		defer close(lines)
		return readers.Wait()
	})
	g.Go(func() error {
		return write(gCtx, lines)
	})

	return g.Wait()
}

// streamFeed parses one gzipped feed and sends its lines downstream.
func streamFeed(ctx context.Context, idx int, path string, out chan<- feedLine) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count, skipped uint64
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}

			line, ok := parseLine(scanner.Text())
			if !ok {
				skipped++
				continue
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", count),
				)
			}

			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("feed complete",
			slog.Int("file", idx+1),
			slog.Uint64("lines", count),
			slog.Uint64("skipped", skipped),
		)
		return nil
	}
}

// parseLine splits name;description;price;stock, rejecting malformed
// rows instead of aborting the whole feed.
func parseLine(raw string) (feedLine, bool) {
	parts := strings.Split(raw, ";")
	if len(parts) != fieldCount {
		return feedLine{}, false
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return feedLine{}, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil || price.IsNegative() {
		return feedLine{}, false
	}
	stock, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil || stock < 0 {
		return feedLine{}, false
	}

	return feedLine{
		name:        name,
		description: strings.TrimSpace(parts[1]),
		price:       price,
		stock:       stock,
	}, true
}

// writeCatalog upserts each first-seen product. Later duplicates of a
// name within the run are dropped by the bloom filter. A false positive
// skips a product for this run only; the next run retries it.
func writeCatalog(ctx context.Context, pool *pgxpool.Pool, lines <-chan feedLine) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var written, duplicates uint64

	for line := range lines {
		if seen.TestString(line.name) {
			duplicates++
			continue
		}
		seen.AddString(line.name)

		_, err := pool.Exec(ctx, upsertProductSQL,
			uuid.New(), line.name, line.description, line.price, line.stock,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", line.name)
		}

		written++
		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Uint64("written", written))
		}
	}

	slog.Info("write complete",
		slog.Uint64("written", written),
		slog.Uint64("duplicates", duplicates),
	)
	return nil
}
