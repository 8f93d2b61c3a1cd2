package lock

import (
	"context"
	"database/sql"
	"time"
)

// MySQL lock via GET_LOCK, which waits server side for whole seconds.
type MySQL struct {
	session
}

func NewMySQL(db *sql.DB, key string) *MySQL {
	return &MySQL{session{db: db, key: key}}
}

func (m *MySQL) Acquire(ctx context.Context, timeout time.Duration) error {
	if m.held {
		return nil
	}
	if err := m.open(ctx); err != nil {
		return err
	}
	var got sql.NullInt64
	err := m.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", m.key, int(timeout.Seconds())).Scan(&got)
	switch {
	case err != nil:
		_ = m.drop()
		return err
	case !got.Valid || got.Int64 != 1:
		_ = m.drop()
		return ErrLockTimeout
	}
	m.held = true
	return nil
}

// Release never fails on RELEASE_LOCK itself; closing the connection frees the lock anyway.
func (m *MySQL) Release(ctx context.Context) error {
	if !m.held {
		return nil
	}
	var released sql.NullInt64
	_ = m.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.key).Scan(&released)
	return m.drop()
}
