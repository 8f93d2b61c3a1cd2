// Package activities reads the activity feed.
package activities

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNoActivities is returned when the activities table is empty.
var ErrNoActivities = errors.New("no activities")

// Activity is one row of the activities table after reply_to_activity_uuid became uuid.
type Activity struct {
	UUID                uuid.UUID     `db:"uuid" json:"uuid"`
	UserUUID            uuid.UUID     `db:"user_uuid" json:"user_uuid"`
	Message             string        `db:"message" json:"message"`
	RepliesCount        int64         `db:"replies_count" json:"replies_count"`
	RepostsCount        int64         `db:"reposts_count" json:"reposts_count"`
	LikesCount          int64         `db:"likes_count" json:"likes_count"`
	ReplyToActivityUUID uuid.NullUUID `db:"reply_to_activity_uuid" json:"reply_to_activity_uuid"`
	ExpiresAt           sql.NullTime  `db:"expires_at" json:"expires_at"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

const sqlHome = `
SELECT uuid, user_uuid, message, replies_count, reposts_count, likes_count,
       reply_to_activity_uuid, expires_at, created_at
FROM activities
`

// Store runs feed queries on a caller-supplied connection.
type Store struct {
	Conn sqlx.QueryerContext
}

// Home returns the first row of the home feed query.
func (s *Store) Home(ctx context.Context) (Activity, error) {
	var a Activity
	err := sqlx.GetContext(ctx, s.Conn, &a, sqlHome)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNoActivities
	}
	return a, err
}
