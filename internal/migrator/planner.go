package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cruddur/feedmigrate/internal/fsutil"
	"github.com/cruddur/feedmigrate/internal/migration"
)

// Source yields migration units.
type Source interface {
	Units(ctx context.Context) ([]migration.Unit, error)
}

// FileSource reads <version>_<label>.{up,down}.sql pairs.
type FileSource struct {
	FS      fs.FS // nil means local disk under RootDir
	RootDir string
}

func (s FileSource) Units(_ context.Context) ([]migration.Unit, error) {
	fsys, root := s.FS, s.RootDir
	if fsys == nil {
		fsys, root = os.DirFS(s.RootDir), "."
	}
	pairs, err := fsutil.Scan(fsys, root)
	if err != nil {
		return nil, err
	}
	out := make([]migration.Unit, 0, len(pairs))
	for _, k := range fsutil.SortKeys(pairs) {
		p := pairs[k]
		upb, err := fs.ReadFile(fsys, p.UpPath)
		if err != nil {
			return nil, err
		}
		downb, err := fs.ReadFile(fsys, p.DownPath)
		if err != nil {
			return nil, err
		}
		up, down := string(upb), string(downb)
		out = append(out, migration.Unit{
			Name:    p.Name(),
			Forward: func() string { return up },
			Reverse: func() string { return down },
		})
	}
	return out, nil
}

// Sources concatenates sources; the same version and label may appear only once.
type Sources []Source

func (ss Sources) Units(ctx context.Context) ([]migration.Unit, error) {
	var all migration.Set
	for _, s := range ss {
		units, err := s.Units(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, units...)
	}
	return all.Units(ctx)
}

type Plan struct {
	Pending []migration.Unit // to apply in order
	Applied map[string]Row
	All     []migration.Unit // all discovered
}

// Lookup indexes All by ledger key.
func (p *Plan) Lookup() map[string]migration.Unit {
	out := make(map[string]migration.Unit, len(p.All))
	for _, u := range p.All {
		out[u.Key()] = u
	}
	return out
}

var (
	ErrDrift = errors.New("checksum drift detected")
)

// DiscoverAndPlan loads units and decides which to run.
// Out-of-order applies are supported: anything not (status=success) is considered pending.
func DiscoverAndPlan(ctx context.Context, src Source, st *Storage) (*Plan, error) {
	all, err := src.Units(ctx)
	if err != nil {
		return nil, err
	}
	migration.Sort(all)
	applied, err := st.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]migration.Unit, 0, len(all))
	for _, u := range all {
		k := u.Key()
		if row, ok := applied[k]; ok {
			if row.Status == StatusSuccess && !strings.EqualFold(row.Checksum, u.Checksum()) {
				return nil, fmt.Errorf("%w: %s (db=%s file=%s)", ErrDrift, k, row.Checksum, u.Checksum())
			}
			if row.Status == StatusFailed {
				pending = append(pending, u)
			}
			continue
		}
		pending = append(pending, u)
	}
	return &Plan{Pending: pending, Applied: applied, All: all}, nil
}
