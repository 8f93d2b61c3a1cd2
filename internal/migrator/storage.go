package migrator

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cruddur/feedmigrate/internal/db"
	"github.com/cruddur/feedmigrate/internal/migration"
)

const ledgerColumns = `version, name, checksum, applied_at, applied_by, duration_ms, status, execution_order`

// Storage reads and writes the applied-migrations ledger. Queries are written with ?
// placeholders and rebound for the connection's driver.
type Storage struct {
	DB    *sqlx.DB
	Table string
}

func (s *Storage) GetAll(ctx context.Context) (map[string]Row, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, ledgerColumns, s.Table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &r.AppliedAt, &r.AppliedBy, &r.DurationMS, &r.Status, &r.ExecutionOrder); err != nil {
			return nil, err
		}
		out[migration.Key(r.Version, r.Name)] = r
	}
	return out, rows.Err()
}

// LastSucceeded returns up to n success rows, newest execution first.
func (s *Storage) LastSucceeded(ctx context.Context, n int) ([]Row, error) {
	q := s.DB.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE status='success' ORDER BY execution_order DESC LIMIT ?`, ledgerColumns, s.Table))
	rows, err := s.DB.QueryContext(ctx, q, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &r.AppliedAt, &r.AppliedBy, &r.DurationMS, &r.Status, &r.ExecutionOrder); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) MaxExecutionOrder(ctx context.Context) (int64, error) {
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(execution_order), 0) FROM %s`, s.Table))
	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func (s *Storage) Upsert(ctx context.Context, r Row) error {
	_, err := s.DB.ExecContext(ctx, s.upsertSQL(),
		r.Version, r.Name, r.Checksum, r.AppliedAt, r.AppliedBy, r.DurationMS, r.Status, r.ExecutionOrder,
	)
	return err
}

func (s *Storage) upsertSQL() string {
	insert := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, s.Table, ledgerColumns)
	if db.IsPostgres(s.DB.DriverName()) {
		return s.DB.Rebind(insert + `ON CONFLICT (version, name) DO UPDATE SET checksum=EXCLUDED.checksum, applied_at=EXCLUDED.applied_at, applied_by=EXCLUDED.applied_by, duration_ms=EXCLUDED.duration_ms, status=EXCLUDED.status, execution_order=EXCLUDED.execution_order`)
	}
	return insert + `ON DUPLICATE KEY UPDATE checksum=VALUES(checksum), applied_at=VALUES(applied_at), applied_by=VALUES(applied_by), duration_ms=VALUES(duration_ms), status=VALUES(status), execution_order=VALUES(execution_order)`
}

func (s *Storage) Delete(ctx context.Context, version, name string) error {
	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE version=? AND name=?`, s.Table)), version, name)
	return err
}
