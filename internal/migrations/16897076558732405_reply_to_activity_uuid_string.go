package migrations

import "github.com/cruddur/feedmigrate/internal/migration"

// ReplyToActivityUUIDString converts activities.reply_to_activity_uuid to uuid.
// Existing values must already be valid UUID text or the ALTER fails atomically.
var ReplyToActivityUUIDString = migration.Unit{
	Name:    "16897076558732405_reply_to_activity_uuid_string",
	Forward: replyToActivityUUIDForward,
	Reverse: replyToActivityUUIDReverse,
}

func replyToActivityUUIDForward() string {
	return `ALTER TABLE activities ALTER COLUMN reply_to_activity_uuid TYPE uuid USING reply_to_activity_uuid::uuid;`
}

func replyToActivityUUIDReverse() string {
	return `ALTER TABLE activities ALTER COLUMN reply_to_activity_uuid TYPE integer USING (reply_to_activity_uuid::integer);`
}
