package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cruddur/feedmigrate/internal/db"
)

// ErrLockTimeout is returned when another runner holds the lock past the timeout.
var ErrLockTimeout = errors.New("advisory lock wait timeout")

// Locker serializes runner invocations against one database and ledger table.
type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release(ctx context.Context) error
	Key() string
}

// New returns the advisory lock implementation for the driver.
func New(database *sql.DB, driver, key string) Locker {
	if db.IsPostgres(driver) {
		return NewPostgres(database, key)
	}
	return NewMySQL(database, key)
}

func KeyFor(database, table string) string {
	return fmt.Sprintf("feedmigrate:%s:%s", database, table)
}

// session pins one pooled connection; advisory locks on both dialects belong to it.
type session struct {
	db   *sql.DB
	conn *sql.Conn
	key  string
	held bool
}

func (s *session) open(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// drop returns the pinned connection to the pool.
func (s *session) drop() error {
	s.held = false
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	return conn.Close()
}

func (s *session) Key() string { return s.key }
