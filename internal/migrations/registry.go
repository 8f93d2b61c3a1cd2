// Package migrations holds the Go-defined schema changes for the activity feed database.
package migrations

import "github.com/cruddur/feedmigrate/internal/migration"

// All returns every registered unit. Order here is irrelevant; the planner sorts by version.
func All() migration.Set {
	return migration.Set{
		ReplyToActivityUUIDString,
	}
}
