// Command coupon-ingest bulk loads coupon definitions from gzip-compressed CSV
// files. Codes defined more than once across the input are reported and left
// out; every other definition is created or updated by code.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type config struct {
	DatabaseURL string `flag:"database-url" usage:"PostgreSQL connection URL (or DATABASE_URL env)"`
	DataDir     string `default:"data" flag:"data-dir" usage:"directory containing coupon files"`
	Pattern     string `default:"*.csv.gz" flag:"pattern" usage:"glob of coupon files inside the data directory"`
	Workers     int    `default:"8" flag:"workers" usage:"concurrent database writers"`
	DryRun      bool   `default:"false" flag:"dry-run" usage:"parse and report without writing"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		SkipFiles: true,
	}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" && !cfg.DryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files, err := filepath.Glob(filepath.Join(cfg.DataDir, cfg.Pattern))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", cfg.Pattern, cfg.DataDir)
	}
	slices.Sort(files)

	lg.Info("Parsing coupon files", zap.Strings("files", files))
	results, err := parseFiles(ctx, lg, files)
	if err != nil {
		return errors.Wrap(err, "parse coupon files")
	}

	unique, duplicates := dedupe(results)
	for code, defs := range duplicates {
		locations := make([]string, len(defs))
		for i, d := range defs {
			locations[i] = d.location()
		}
		lg.Warn("Skipping duplicate coupon code",
			zap.String("code", code),
			zap.Strings("defined_at", locations),
		)
	}
	lg.Info("Coupon definitions ready",
		zap.Int("unique", len(unique)),
		zap.Int("duplicate_codes", len(duplicates)),
	)

	if cfg.DryRun || len(unique) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, lg, coupon.NewManager(postgres.NewCouponRepository(pool)), unique, cfg.Workers)
}

// parseFiles parses every file concurrently.
func parseFiles(ctx context.Context, lg *zap.Logger, files []string) ([]*fileResult, error) {
	results := make([]*fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := parseFile(ctx, lg, path)
			if err != nil {
				return err
			}
			lg.Info("Parsed coupon file",
				zap.String("file", path),
				zap.Int("definitions", len(res.defs)),
				zap.Int("invalid", res.invalid),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// upserter is the part of coupon.Manager the writer needs.
type upserter interface {
	Upsert(ctx context.Context, in coupon.Input) (*coupon.Coupon, bool, error)
}

// writeCoupons creates or updates every definition using up to workers
// concurrent writers.
func writeCoupons(ctx context.Context, lg *zap.Logger, m upserter, defs []definition, workers int) error {
	var created, updated atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, d := range defs {
		g.Go(func() error {
			_, isNew, err := m.Upsert(ctx, d.input)
			if err != nil {
				return errors.Wrapf(err, "upsert coupon %s from %s", d.input.Code, d.location())
			}
			if isNew {
				created.Add(1)
			} else {
				updated.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Coupons written",
		zap.Int64("created", created.Load()),
		zap.Int64("updated", updated.Load()),
	)
	return nil
}
