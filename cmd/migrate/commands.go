package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cruddur/feedmigrate/internal/logger"
	"github.com/cruddur/feedmigrate/internal/migration"
	"github.com/cruddur/feedmigrate/internal/migrator"
)

func verboseProgress(log *logger.Logger, verbose bool, prefix string) migrator.ProgressFunc {
	return func(stage string, u migration.Unit, row *migrator.Row, err error) {
		if !verbose {
			return
		}
		fields := map[string]any{
			"version": u.Version(),
			"name":    u.Label(),
		}
		if row != nil {
			fields["order"] = row.ExecutionOrder
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		switch stage {
		case migrator.StageStart:
			log.Info(prefix+".start", fields)
		case migrator.StageSuccess:
			if row != nil && prefix == "migrate" {
				fields["duration_ms"] = row.DurationMS
			}
			log.Info(prefix+".success", fields)
		case migrator.StageError:
			log.Error(prefix+".error", fields)
		}
	}
}

func newUpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), g, func(ctx context.Context, s *session) error {
				if len(s.plan.Pending) == 0 {
					s.log.Info("no pending migrations", nil)
					return nil
				}
				if g.verbose {
					for _, u := range s.plan.Pending {
						s.log.Info("plan.apply", map[string]any{
							"version":  u.Version(),
							"name":     u.Label(),
							"checksum": u.Checksum(),
						})
					}
				}
				applied, err := s.run.ApplyUp(ctx, s.plan.Pending, s.cfg.DryRun, verboseProgress(s.log, g.verbose, "migrate"))
				if err != nil {
					s.log.Error("up failed", map[string]any{"error": err.Error(), "applied": len(applied)})
					return withCode(exitFail, err)
				}
				s.log.Info("up complete", map[string]any{"applied": len(applied), "dry_run": s.cfg.DryRun})
				return nil
			})
		},
	}
}

func newDownCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "down <n|all>",
		Short: "Roll back the last n migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			if strings.ToLower(args[0]) != "all" {
				var err error
				n, err = strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return withCode(exitPlanError, fmt.Errorf("invalid N for down: %q", args[0]))
				}
			}
			return withSession(cmd.Context(), g, func(ctx context.Context, s *session) error {
				rows, err := s.run.LastApplied(ctx, n)
				if err != nil {
					s.log.Error("down query failed", map[string]any{"error": err.Error()})
					return withCode(exitFail, err)
				}
				if len(rows) == 0 {
					s.log.Info("nothing to roll back", nil)
					return nil
				}
				if g.verbose {
					for _, r := range rows {
						s.log.Info("plan.rollback", map[string]any{
							"version": r.Version,
							"name":    r.Name,
							"order":   r.ExecutionOrder,
							"status":  r.Status,
						})
					}
				}
				if err := s.run.ApplyDown(ctx, rows, s.plan.Lookup(), s.cfg.DryRun, verboseProgress(s.log, g.verbose, "migrate.down")); err != nil {
					s.log.Error("down failed", map[string]any{"error": err.Error()})
					return withCode(exitFail, err)
				}
				s.log.Info("down complete", map[string]any{"reverted": len(rows), "dry_run": s.cfg.DryRun})
				return nil
			})
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied/pending state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), g, func(_ context.Context, s *session) error {
				if g.verbose {
					logVerboseStatus(s.plan, s.log)
					return nil
				}
				return printStatus(cmd.OutOrStdout(), s.plan, s.log.JSONEnabled())
			})
		},
	}
}

func logVerboseStatus(plan *migrator.Plan, log *logger.Logger) {
	for _, row := range appliedInOrder(plan) {
		log.Info("status.applied", map[string]any{
			"version":         row.Version,
			"name":            row.Name,
			"checksum":        row.Checksum,
			"status":          row.Status,
			"applied_at":      row.AppliedAt.UTC().Format(time.RFC3339),
			"applied_by":      row.AppliedBy,
			"duration_ms":     row.DurationMS,
			"execution_order": row.ExecutionOrder,
		})
	}
	for _, u := range plan.Pending {
		log.Info("status.pending", map[string]any{
			"version":  u.Version(),
			"name":     u.Label(),
			"checksum": u.Checksum(),
		})
	}
	log.Info("status.summary", map[string]any{
		"applied": len(plan.Applied),
		"pending": len(plan.Pending),
	})
}

// appliedInOrder returns the ledger rows sorted by execution order.
func appliedInOrder(plan *migrator.Plan) []migrator.Row {
	rows := make([]migrator.Row, 0, len(plan.Applied))
	for _, row := range plan.Applied {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExecutionOrder < rows[j].ExecutionOrder })
	return rows
}

type statusItem struct {
	Version  string `json:"version"`
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
	Status   string `json:"status"` // success|failed|pending
}

func statusItems(plan *migrator.Plan) []statusItem {
	out := make([]statusItem, 0, len(plan.All))
	for _, u := range plan.All {
		status := "pending"
		if row, ok := plan.Applied[u.Key()]; ok {
			status = row.Status
		}
		out = append(out, statusItem{Version: u.Version(), Name: u.Label(), Checksum: u.Checksum(), Status: status})
	}
	return out
}

func printStatus(w io.Writer, plan *migrator.Plan, asJSON bool) error {
	items := statusItems(plan)
	if asJSON {
		return json.NewEncoder(w).Encode(items)
	}
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "%s %-30s %-8s %s\n", it.Version, it.Name, it.Status, it.Checksum[:12]); err != nil {
			return err
		}
	}
	return nil
}

func newCreateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold <timestamp>_<name>.{up,down}.sql",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.resolve()
			if err != nil {
				return withCode(exitPlanError, err)
			}
			log := logger.New(cfg.JSON)
			defer func() { _ = log.Sync() }()
			dir := cfg.Dir
			if dir == "" {
				dir = "./migrations"
			}
			up, down, err := createPair(dir, args[0], time.Now())
			if err != nil {
				log.Error("create failed", map[string]any{"error": err.Error()})
				return withCode(exitFail, err)
			}
			log.Info("created migration pair", map[string]any{"up": up, "down": down})
			return nil
		},
	}
}

func createPair(dir, name string, now time.Time) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	base := fmt.Sprintf("%s_%s", now.UTC().Format("20060102150405"), sanitize(name))
	stub := func() string { return "" }
	if err := (migration.Unit{Name: base, Forward: stub, Reverse: stub}).Validate(); err != nil {
		return "", "", err
	}
	up := filepath.Join(dir, base+".up.sql")
	down := filepath.Join(dir, base+".down.sql")
	if err := os.WriteFile(up, []byte("-- write your UP migration here\n"), 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(down, []byte("-- write your DOWN migration here\n"), 0o644); err != nil {
		return "", "", err
	}
	return up, down, nil
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func newRepairCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Update stored checksums to current migrations (use after intentional edits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), g, func(ctx context.Context, s *session) error {
				changed, err := s.run.Repair(ctx, s.plan, s.cfg.DryRun)
				if err != nil {
					s.log.Error("repair failed", map[string]any{"error": err.Error()})
					return withCode(exitFail, err)
				}
				s.log.Info("repair complete", map[string]any{"updated": changed, "dry_run": s.cfg.DryRun})
				return nil
			})
		},
	}
}

func newForceCmd(g *globalFlags) *cobra.Command {
	var fake bool
	cmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Mark all migrations <= version as applied (baseline)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(ctx context.Context, s *session) error {
				applied, err := s.run.ForceBaseline(ctx, s.plan.All, args[0], fake)
				if err != nil {
					s.log.Error("force failed", map[string]any{"error": err.Error()})
					if errors.Is(err, migrator.ErrNoSuchVersion) {
						return withCode(exitPlanError, err)
					}
					return withCode(exitFail, err)
				}
				s.log.Info("force complete", map[string]any{"count": len(applied), "fake": fake})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fake, "fake", false, "Record without running the SQL")
	return cmd
}

func newPrintCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print forward and reverse SQL of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve()
			if err != nil {
				return withCode(exitPlanError, err)
			}
			src, err := source(cfg)
			if err != nil {
				return withCode(exitPlanError, err)
			}
			units, err := src.Units(cmd.Context())
			if err != nil {
				return withCode(exitPlanError, err)
			}
			return printUnits(cmd.OutOrStdout(), units)
		},
	}
}

func printUnits(w io.Writer, units []migration.Unit) error {
	for _, u := range units {
		if _, err := fmt.Fprintf(w, "-- %s\n-- +migrate Up\n%s\n\n-- +migrate Down\n%s\n\n", u.Name, u.ForwardSQL(), u.ReverseSQL()); err != nil {
			return err
		}
	}
	return nil
}
