package migration

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUnit() Unit {
	return Unit{
		Name:    "20250101000000_add_col",
		Forward: func() string { return "ALTER TABLE t1 ADD COLUMN c INT;" },
		Reverse: func() string { return "ALTER TABLE t1 DROP COLUMN c;" },
	}
}

func TestUnitNameParts(t *testing.T) {
	u := testUnit()
	assert.Equal(t, "20250101000000", u.Version())
	assert.Equal(t, "add_col", u.Label())
	assert.Equal(t, "20250101000000:add_col", u.Key())
	require.NoError(t, u.Validate())

	bad := Unit{Name: "add_col", Forward: u.Forward, Reverse: u.Reverse}
	assert.Equal(t, "", bad.Version())
	assert.ErrorIs(t, bad.Validate(), ErrInvalidName)

	noReverse := Unit{Name: u.Name, Forward: u.Forward}
	assert.Error(t, noReverse.Validate())
}

func TestUnitChecksumIsStable(t *testing.T) {
	u := testUnit()
	assert.Equal(t, u.Checksum(), u.Checksum())
	assert.Len(t, u.Checksum(), 64)

	other := testUnit()
	other.Forward = func() string { return "ALTER TABLE t1 ADD COLUMN d INT;" }
	assert.NotEqual(t, u.Checksum(), other.Checksum())
}

func TestApplyForwardCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := testUnit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(u.ForwardSQL())).WithArgs().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, u.ApplyForward(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReverseCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := testUnit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(u.ReverseSQL())).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, u.ApplyReverse(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyForwardReturnsDriverErrorAndRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	castErr := errors.New(`invalid input syntax for type uuid: "not-a-uuid"`)
	u := testUnit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(u.ForwardSQL())).WillReturnError(castErr)
	mock.ExpectRollback()

	err = u.ApplyForward(context.Background(), db)
	assert.Same(t, castErr, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyForwardReturnsCommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	commitErr := errors.New("could not serialize access")
	u := testUnit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(u.ForwardSQL())).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(commitErr)

	assert.ErrorIs(t, u.ApplyForward(context.Background(), db), commitErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOnDedicatedConn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	u := testUnit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(u.ForwardSQL())).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, u.ApplyForward(ctx, conn))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	beginErr := errors.New("connection refused")
	mock.ExpectBegin().WillReturnError(beginErr)

	assert.ErrorIs(t, testUnit().ApplyReverse(context.Background(), db), beginErr)
}

func TestSetUnitsSortsAndRejectsDuplicates(t *testing.T) {
	a := testUnit()
	b := Unit{Name: "16897076558732405_reply", Forward: a.Forward, Reverse: a.Reverse}
	c := Unit{Name: "20250101000000_aaa", Forward: a.Forward, Reverse: a.Reverse}

	units, err := Set{a, b, c}.Units(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "20250101000000_aaa", units[0].Name)
	assert.Equal(t, "20250101000000_add_col", units[1].Name)
	assert.Equal(t, "16897076558732405_reply", units[2].Name)

	_, err = Set{a, a}.Units(context.Background())
	assert.Error(t, err)
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("001", "1"))
	assert.Equal(t, -1, CompareVersions("20250101000000", "16897076558732405"))
	assert.Equal(t, 1, CompareVersions("20250102000000", "20250101000000"))
}
