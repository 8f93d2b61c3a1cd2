package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes raised when ALTER ... USING cannot convert a value.
const (
	codeInvalidTextRepresentation = "22P02"
	codeCannotCoerce              = "42846"
	codeDatatypeMismatch          = "42804"
)

// SQLState returns the SQLSTATE carried by a pgx or lib/pq error, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return string(myErr.SQLState[:])
	}
	return ""
}

// IsCastError reports whether err is a value or type conversion failure from PostgreSQL.
func IsCastError(err error) bool {
	switch SQLState(err) {
	case codeInvalidTextRepresentation, codeCannotCoerce, codeDatatypeMismatch:
		return true
	}
	return false
}
