package lock

import (
	"context"
	"database/sql"
	"time"
)

// Postgres advisory lock. pg_try_advisory_lock is polled until the timeout because
// pg_advisory_lock has no wait limit of its own.
type Postgres struct {
	session
	interval time.Duration
}

func NewPostgres(db *sql.DB, key string) *Postgres {
	return &Postgres{session: session{db: db, key: key}, interval: 250 * time.Millisecond}
}

func (p *Postgres) Acquire(ctx context.Context, timeout time.Duration) error {
	if p.held {
		return nil
	}
	if err := p.open(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		var got bool
		if err := p.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", p.key).Scan(&got); err != nil {
			_ = p.drop()
			return err
		}
		if got {
			p.held = true
			return nil
		}
		if !time.Now().Before(deadline) {
			_ = p.drop()
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			_ = p.drop()
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

func (p *Postgres) Release(ctx context.Context) error {
	if !p.held {
		return nil
	}
	var released bool
	_ = p.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", p.key).Scan(&released)
	return p.drop()
}
