// Command seeder populates the curriculum database from a content directory.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/platform/cache"
	"github.com/p-n-ai/pai-seed/internal/platform/config"
	"github.com/p-n-ai/pai-seed/internal/platform/database"
	"github.com/p-n-ai/pai-seed/internal/platform/logging"
	"github.com/p-n-ai/pai-seed/internal/seed"
	"github.com/p-n-ai/pai-seed/internal/store"
)

var (
	contentDir string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Populate curriculum content",
	Long: `Populate learning-path templates, exercise banks and their translations
from a content directory (*.template.yaml, *.language.yaml, *.exercises.xlsx).

Configuration comes from LEARN_* environment variables and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&contentDir, "content", "", "content directory (overrides LEARN_CURRICULUM_PATH)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "run against an in-memory store instead of the database")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// seed errors already read "<code>: <key>: <message>"
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is everything a command needs once configuration is loaded.
type env struct {
	cfg     *config.Config
	loader  *curriculum.Loader
	runner  *seed.Runner
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// setup loads config and content, then opens the store. With --dry-run the
// store is in memory and no lock is taken.
func setup(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if contentDir != "" {
		cfg.CurriculumPath = contentDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &env{cfg: cfg}
	logger, closeLog := logging.New(cfg.Log, stderr)
	slog.SetDefault(logger)
	e.closers = append(e.closers, func() { _ = closeLog() })

	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.loader = loader

	runnerCfg := seed.RunnerConfig{
		Catalog:        loader.Catalog(),
		Reporter:       seed.NewSlogReporter(logger),
		LockKey:        cfg.Seed.LockKey,
		LockTTL:        time.Duration(cfg.Seed.LockTTL) * time.Second,
		Atomic:         cfg.Seed.Atomic,
		StrictOrdering: cfg.Seed.StrictOrdering,
	}

	if dryRun {
		slog.Info("dry run, writing to memory store")
		runnerCfg.Store = store.NewMemoryStore()
		e.runner = seed.NewRunner(runnerCfg)
		return e, nil
	}

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.closers = append(e.closers, db.Close)

	version, err := db.HealthCheck(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}
	slog.Info("database ready", "version", version)

	if err := db.Migrate(ctx); err != nil {
		e.Close()
		return nil, err
	}
	st, err := store.NewPostgresStore(db.Pool)
	if err != nil {
		e.Close()
		return nil, err
	}
	runnerCfg.Store = st

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		e.closers = append(e.closers, func() { _ = c.Close() })
		if err := c.HealthCheck(ctx); err != nil {
			e.Close()
			return nil, err
		}
		runnerCfg.Locker = c
	} else {
		slog.Warn("LEARN_CACHE_URL not set, running without a run lock")
	}

	e.runner = seed.NewRunner(runnerCfg)
	return e, nil
}

func printSummary(w io.Writer, sum seed.Summary) {
	fmt.Fprintf(w, "%s: created %d, deleted %d, warnings %d\n", sum.Routine, sum.Created, sum.Deleted, sum.Warnings)
	for _, name := range sum.Skipped {
		fmt.Fprintf(w, "  skipped %s (unchanged)\n", name)
	}
}
