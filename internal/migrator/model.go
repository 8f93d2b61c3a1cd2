package migrator

import (
	"time"

	"github.com/cruddur/feedmigrate/internal/migration"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Row is one ledger entry.
type Row struct {
	Version        string
	Name           string
	Checksum       string
	AppliedAt      time.Time
	AppliedBy      string
	DurationMS     int64
	Status         string // success | failed
	ExecutionOrder int64
}

// Progress stages passed to ProgressFunc.
const (
	StageStart   = "start"
	StageSuccess = "success"
	StageError   = "error"
)

// ProgressFunc observes each unit as the runner moves through it. row and err may be nil.
type ProgressFunc func(stage string, unit migration.Unit, row *Row, err error)
