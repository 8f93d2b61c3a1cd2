package migrator

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cruddur/feedmigrate/internal/db"
	"github.com/cruddur/feedmigrate/internal/migration"
)

// Runner applies and reverts units one at a time, recording each in the ledger.
// Every unit runs in its own transaction; the first failure halts the run.
type Runner struct {
	DB        *sqlx.DB
	Storage   *Storage
	AppliedBy string
}

func NewRunner(database *sqlx.DB, table string, appliedBy string) *Runner {
	return &Runner{
		DB:        database,
		Storage:   &Storage{DB: database, Table: table},
		AppliedBy: appliedBy,
	}
}

func defaultAppliedBy() string {
	u, err := user.Current()
	if err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func (r *Runner) Ensure(ctx context.Context) error {
	if err := db.EnsureTable(ctx, r.DB, r.Storage.Table); err != nil {
		return err
	}
	if strings.TrimSpace(r.AppliedBy) == "" {
		r.AppliedBy = defaultAppliedBy()
	}
	return nil
}

func (r *Runner) newRow(u migration.Unit, order int64) Row {
	return Row{
		Version:        u.Version(),
		Name:           u.Label(),
		Checksum:       u.Checksum(),
		AppliedAt:      time.Now().UTC(),
		AppliedBy:      r.AppliedBy,
		Status:         StatusSuccess,
		ExecutionOrder: order,
	}
}

func (r *Runner) ApplyUp(ctx context.Context, units []migration.Unit, dryRun bool, progress ProgressFunc) ([]Row, error) {
	if progress == nil {
		progress = func(string, migration.Unit, *Row, error) {}
	}
	applied := make([]Row, 0, len(units))
	maxOrder, err := r.Storage.MaxExecutionOrder(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		maxOrder++
		row := r.newRow(u, maxOrder)
		progress(StageStart, u, &row, nil)

		if dryRun {
			progress(StageSuccess, u, &row, nil)
			applied = append(applied, row)
			continue
		}

		start := time.Now()
		if err := u.ApplyForward(ctx, r.DB); err != nil {
			row.Status = StatusFailed
			row.DurationMS = time.Since(start).Milliseconds()
			_ = r.Storage.Upsert(ctx, row)
			progress(StageError, u, &row, err)
			return applied, fmt.Errorf("migration %s failed: %w", u.Name, err)
		}

		row.DurationMS = time.Since(start).Milliseconds()
		if err := r.Storage.Upsert(ctx, row); err != nil {
			progress(StageError, u, &row, err)
			return applied, err
		}
		progress(StageSuccess, u, &row, nil)
		applied = append(applied, row)
	}
	return applied, nil
}

func (r *Runner) ApplyDown(ctx context.Context, toRevert []Row, lookup map[string]migration.Unit, dryRun bool, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string, migration.Unit, *Row, error) {}
	}
	for i := range toRevert {
		row := toRevert[i]
		u, ok := lookup[migration.Key(row.Version, row.Name)]
		if !ok {
			return fmt.Errorf("missing down migration for %s:%s", row.Version, row.Name)
		}
		progress(StageStart, u, &row, nil)
		if dryRun {
			progress(StageSuccess, u, &row, nil)
			continue
		}
		if err := u.ApplyReverse(ctx, r.DB); err != nil {
			progress(StageError, u, &row, err)
			return fmt.Errorf("down migration %s failed: %w", u.Name, err)
		}
		// Remove record to indicate "not applied"
		if err := r.Storage.Delete(ctx, row.Version, row.Name); err != nil {
			progress(StageError, u, &row, err)
			return err
		}
		progress(StageSuccess, u, &row, nil)
	}
	return nil
}

// LastApplied returns the n most recent successful rows; n <= 0 means all of them.
func (r *Runner) LastApplied(ctx context.Context, n int) ([]Row, error) {
	if n <= 0 {
		n = 999999999
	}
	return r.Storage.LastSucceeded(ctx, n)
}

var ErrNoSuchVersion = errors.New("no such version")

// ForceBaseline records every unit up to and including version as applied.
// With fake the SQL is not executed.
func (r *Runner) ForceBaseline(ctx context.Context, all []migration.Unit, version string, fake bool) ([]Row, error) {
	found := false
	for _, u := range all {
		if u.Version() == version {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchVersion, version)
	}
	applied := make([]Row, 0)
	maxOrder, err := r.Storage.MaxExecutionOrder(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if migration.CompareVersions(u.Version(), version) > 0 {
			continue
		}
		maxOrder++
		row := r.newRow(u, maxOrder)
		if !fake {
			if err := u.ApplyForward(ctx, r.DB); err != nil {
				return applied, fmt.Errorf("migration %s failed: %w", u.Name, err)
			}
		}
		if err := r.Storage.Upsert(ctx, row); err != nil {
			return applied, err
		}
		applied = append(applied, row)
	}
	return applied, nil
}

// Repair rewrites stored checksums to match the current units. Use after intentional edits.
func (r *Runner) Repair(ctx context.Context, plan *Plan, dryRun bool) (int, error) {
	changed := 0
	for _, u := range plan.All {
		row, ok := plan.Applied[u.Key()]
		if !ok {
			continue // pending; nothing to repair
		}
		if strings.EqualFold(row.Checksum, u.Checksum()) {
			continue
		}
		row.Checksum = u.Checksum()
		row.AppliedAt = time.Now().UTC()
		if dryRun {
			changed++
			continue
		}
		if err := r.Storage.Upsert(ctx, row); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
