package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

var nameRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_\-]+)$`)

// ErrInvalidName is returned for names not shaped <digits>_<label>.
var ErrInvalidName = errors.New("invalid migration name")

// Conn is the caller-owned handle a unit executes on. *sql.DB, *sql.Conn and *sqlx.DB satisfy it.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Unit is one reversible schema change: a timestamp-prefixed name and two SQL producers.
type Unit struct {
	Name    string
	Forward func() string
	Reverse func() string
}

func (u Unit) ForwardSQL() string { return u.Forward() }
func (u Unit) ReverseSQL() string { return u.Reverse() }

// Version returns the digit prefix of the name, or "" when the name is malformed.
func (u Unit) Version() string {
	m := nameRe.FindStringSubmatch(u.Name)
	if m == nil {
		return ""
	}
	return m[1]
}

// Label returns the part of the name after the version.
func (u Unit) Label() string {
	m := nameRe.FindStringSubmatch(u.Name)
	if m == nil {
		return ""
	}
	return m[2]
}

// Key is the ledger key "version:label".
func (u Unit) Key() string { return Key(u.Version(), u.Label()) }

// Checksum is the hex SHA-256 of the forward SQL.
func (u Unit) Checksum() string {
	sum := sha256.Sum256([]byte(u.ForwardSQL()))
	return hex.EncodeToString(sum[:])
}

// Validate checks the name shape and that both SQL producers are set.
func (u Unit) Validate() error {
	if !nameRe.MatchString(u.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, u.Name)
	}
	if u.Forward == nil || u.Reverse == nil {
		return fmt.Errorf("migration %s: forward and reverse are both required", u.Name)
	}
	return nil
}

// ApplyForward runs the forward SQL in its own committed transaction.
// Driver errors are returned unchanged.
func (u Unit) ApplyForward(ctx context.Context, conn Conn) error {
	return execCommit(ctx, conn, u.ForwardSQL())
}

// ApplyReverse runs the reverse SQL in its own committed transaction.
func (u Unit) ApplyReverse(ctx context.Context, conn Conn) error {
	return execCommit(ctx, conn, u.ReverseSQL())
}

func execCommit(ctx context.Context, conn Conn, stmt string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func Key(version, label string) string { return version + ":" + label }
