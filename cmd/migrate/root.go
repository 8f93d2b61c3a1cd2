package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/cruddur/feedmigrate/internal/config"
	"github.com/cruddur/feedmigrate/internal/db"
	"github.com/cruddur/feedmigrate/internal/lock"
	"github.com/cruddur/feedmigrate/internal/logger"
	"github.com/cruddur/feedmigrate/internal/migrations"
	"github.com/cruddur/feedmigrate/internal/migrator"
)

type globalFlags struct {
	dsn         string
	driver      string
	dir         string
	json        bool
	dryRun      bool
	config      string
	lockTimeout int
	table       string
	appliedBy   string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migrations for the activity feed database",
		Example: `  migrate up --dsn "$DSN"
  migrate down 1 --dsn "$DSN"
  migrate status --dsn "$DSN" --json
  migrate create add_user_table --dir ./migrations
  migrate repair --dsn "$DSN"
  migrate force 16897076558732405 --dsn "$DSN" --fake
  migrate print`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&g.dsn, "dsn", "", "Database DSN (or DB_DSN)")
	f.StringVar(&g.driver, "driver", "", "Driver: pgx, postgres or mysql (or DB_DRIVER); inferred from DSN when empty")
	f.StringVar(&g.dir, "dir", "", "Optional directory of .up.sql/.down.sql pairs (or MIGRATIONS_DIR)")
	f.BoolVar(&g.json, "json", false, "JSON logs")
	f.BoolVar(&g.dryRun, "dry-run", false, "Plan only; do not execute")
	f.StringVar(&g.config, "config", "", "Optional YAML config path")
	f.IntVar(&g.lockTimeout, "lock-timeout", 0, "Lock timeout seconds (or LOCK_TIMEOUT_SEC)")
	f.StringVar(&g.table, "table", "", "Migrations table name (default schema_migrations)")
	f.StringVar(&g.appliedBy, "applied-by", "", "Override applied_by value")
	f.BoolVar(&g.verbose, "verbose", false, "Verbose per-migration logs")

	root.AddCommand(
		newUpCmd(g),
		newDownCmd(g),
		newStatusCmd(g),
		newCreateCmd(g),
		newRepairCmd(g),
		newForceCmd(g),
		newPrintCmd(g),
	)
	return root
}

// resolve layers YAML config, environment and flags, in that order.
func (g *globalFlags) resolve() (*config.Config, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	if g.dsn != "" {
		cfg.DSN = g.dsn
	}
	if g.driver != "" {
		cfg.Driver = g.driver
	}
	if g.dir != "" {
		cfg.Dir = g.dir
	}
	if g.json {
		cfg.JSON = true
	}
	if g.dryRun {
		cfg.DryRun = true
	}
	if g.lockTimeout > 0 {
		cfg.LockTimeoutSec = g.lockTimeout
	}
	if g.table != "" {
		cfg.MigrationsTable = g.table
	}
	if g.appliedBy != "" {
		cfg.AppliedBy = g.appliedBy
	}
	return cfg, nil
}

// source returns the Go-defined units plus SQL file pairs from cfg.Dir when one is configured.
// A configured directory must exist.
func source(cfg *config.Config) (migrator.Source, error) {
	srcs := migrator.Sources{migrations.All()}
	if cfg.Dir == "" {
		return srcs, nil
	}
	st, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("migrations dir %s: not a directory", cfg.Dir)
	}
	return append(srcs, migrator.FileSource{RootDir: cfg.Dir}), nil
}

// session is an opened, locked and planned database for one command.
type session struct {
	cfg  *config.Config
	log  *logger.Logger
	run  *migrator.Runner
	plan *migrator.Plan
}

// withSession opens the database, ensures the ledger, takes the advisory lock and plans,
// then calls fn. Cleanup errors are combined with fn's error.
func withSession(ctx context.Context, g *globalFlags, fn func(ctx context.Context, s *session) error) (err error) {
	cfg, err := g.resolve()
	if err != nil {
		return withCode(exitPlanError, err)
	}
	log := logger.New(cfg.JSON)
	defer func() { _ = log.Sync() }()

	if cfg.DSN == "" {
		return withCode(exitPlanError, errors.New("--dsn or DB_DSN is required"))
	}
	src, err := source(cfg)
	if err != nil {
		return withCode(exitPlanError, err)
	}
	driver, err := db.ResolveDriver(cfg.Driver, cfg.DSN)
	if err != nil {
		return withCode(exitPlanError, err)
	}
	database, err := db.Open(driver, cfg.DSN)
	if err != nil {
		log.Error("db open failed", map[string]any{"error": err.Error()})
		return withCode(exitFail, err)
	}
	defer func() {
		err = appendCleanup(err, "close db", database.Close())
	}()

	run := migrator.NewRunner(database, cfg.MigrationsTable, cfg.AppliedBy)
	if err := run.Ensure(ctx); err != nil {
		log.Error("ensure table failed", map[string]any{"error": err.Error()})
		return withCode(exitFail, err)
	}

	lockKey := lock.KeyFor(db.DatabaseName(cfg.DSN), cfg.MigrationsTable)
	l := lock.New(database.DB, driver, lockKey)
	if err := l.Acquire(ctx, cfg.LockTimeout()); err != nil {
		log.Error("failed to acquire lock", map[string]any{"error": err.Error(), "key": lockKey})
		return withCode(exitLocked, err)
	}
	defer func() {
		err = appendCleanup(err, "release lock", l.Release(context.Background()))
	}()

	plan, err := migrator.DiscoverAndPlan(ctx, src, run.Storage)
	if err != nil {
		if errors.Is(err, migrator.ErrDrift) {
			log.Error("drift detected", map[string]any{"error": err.Error()})
			return withCode(exitDrift, err)
		}
		log.Error("plan failed", map[string]any{"error": err.Error()})
		return withCode(exitPlanError, err)
	}
	return fn(ctx, &session{cfg: cfg, log: log, run: run, plan: plan})
}

// appendCleanup adds a failed cleanup step to err. A cleanup failure alone exits with exitFail;
// an earlier error keeps its own exit code.
func appendCleanup(err error, step string, cerr error) error {
	if cerr == nil {
		return err
	}
	return multierr.Append(err, withCode(exitFail, fmt.Errorf("%s: %w", step, cerr)))
}
