package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"incentivekit/adapters/jsonfile"
	mem "incentivekit/adapters/memory"
	sqlxAdapter "incentivekit/adapters/sqlx"
	"incentivekit/config"
	"incentivekit/core"
	"incentivekit/engine"
)

// backfillCmd walks confirmed reviews in id order and runs each through the
// processing pipeline. The ledger makes the walk safe to re-run: reviews
// already rewarded are reported as duplicates and skipped.
type backfillCmd struct {
	after  int64
	batch  int
	user   int64
	dryRun bool
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "process historical confirmed reviews" }
func (*backfillCmd) Usage() string {
	return `backfill [-after ID] [-batch N] [-user ID] [-dry-run]:
  Re-run reward processing over confirmed reviews, skipping already
  processed ones.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.after, "after", 0, "start after this review id")
	f.IntVar(&c.batch, "batch", 200, "reviews per page")
	f.Int64Var(&c.user, "user", 0, "only process reviews by this user (0 = all)")
	f.BoolVar(&c.dryRun, "dry-run", false, "list candidate reviews without processing")
}

func (c *backfillCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.batch <= 0 || c.batch > 1000 {
		fmt.Fprintln(os.Stderr, "batch must be 1..1000")
		return subcommands.ExitUsageError
	}

	cfg, storage, cleanup, logger, err := openStorage()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	processor, err := newProcessor(cfg, storage, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var processed, duplicates, failed int
	after := c.after
	for {
		page, err := storage.ListConfirmed(ctx, after, c.batch)
		if err != nil {
			logger.Error("list confirmed reviews", "after", after, "error", err)
			return subcommands.ExitFailure
		}
		if len(page) == 0 {
			break
		}
		for _, review := range page {
			after = review.ID
			if c.user != 0 && review.CustomerUserID != core.UserID(c.user) {
				continue
			}
			if c.dryRun {
				fmt.Printf("review %d user %d order %d\n", review.ID, review.CustomerUserID, review.OrderID)
				continue
			}
			out := processor.ProcessConfirmedReview(ctx, review.CustomerUserID, review.ID, review.OrderID)
			switch {
			case out.Success:
				processed++
			case out.Error == engine.ErrDuplicateReview.Error():
				duplicates++
			default:
				failed++
				logger.Warn("backfill review failed",
					"review_id", review.ID, "user_id", review.CustomerUserID, "error", out.Error)
			}
		}
	}

	logger.Info("backfill finished",
		"processed", processed, "duplicates", duplicates, "failed", failed)
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// openStorage loads configuration and opens the configured storage adapter.
func openStorage() (*config.Config, engine.Storage, func(), *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if path := os.Getenv("INCENTIVEKIT_CONFIG_FILE"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	switch cfg.Storage.Adapter {
	case "memory":
		return cfg, mem.New(), func() {}, logger, nil
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open sql storage: %w", err)
		}
		return cfg, store, func() { _ = store.Close() }, logger, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// catalogStores resolves the catalog/config backend, honoring the same
// catalog-file setting the server uses so seeds land where it reads.
func catalogStores(cfg *config.Config, storage engine.Storage) (engine.CatalogStore, engine.CatalogAdmin, engine.ConfigStore, error) {
	if cfg.Storage.CatalogFile == "" {
		return storage, storage, storage, nil
	}
	jf, err := jsonfile.New(cfg.Storage.CatalogFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open catalog file: %w", err)
	}
	return jf, jf, jf, nil
}

func newProcessor(cfg *config.Config, storage engine.Storage, logger *slog.Logger) (*engine.Processor, error) {
	catalog, _, configStore, err := catalogStores(cfg, storage)
	if err != nil {
		return nil, err
	}
	bus := engine.NewEventBus(engine.DispatchSync)
	collector := engine.NewCollector(storage, storage, storage, storage, logger)
	return engine.NewProcessor(
		engine.NewCalculator(storage, configStore, logger),
		storage,
		engine.NewProgression(storage, catalog, bus, logger),
		engine.NewBadgeEvaluator(storage, catalog, collector, bus, logger),
		collector,
		logger,
		engine.WithLedger(storage),
	), nil
}
