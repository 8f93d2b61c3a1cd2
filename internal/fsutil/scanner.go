package fsutil

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"

	"github.com/cruddur/feedmigrate/internal/migration"
)

var fileRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_\-]+)\.(up|down)\.sql$`)

// Pair is one <version>_<label>.{up,down}.sql file pair.
type Pair struct {
	Version  string
	Label    string
	UpPath   string // slash path inside the scanned fs
	DownPath string
}

func (p *Pair) Name() string { return p.Version + "_" + p.Label }

// Scan reads root inside fsys and groups migration files into pairs keyed by "version:label".
// Use os.DirFS for a directory on disk.
func Scan(fsys fs.FS, root string) (map[string]*Pair, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	out := map[string]*Pair{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, label, typ := m[1], m[2], m[3]
		key := migration.Key(version, label)
		p := out[key]
		if p == nil {
			p = &Pair{Version: version, Label: label}
			out[key] = p
		}
		full := path.Join(root, e.Name())
		switch typ {
		case "up":
			if p.UpPath != "" {
				return nil, fmt.Errorf("duplicate up file for version %s", version)
			}
			p.UpPath = full
		case "down":
			if p.DownPath != "" {
				return nil, fmt.Errorf("duplicate down file for version %s", version)
			}
			p.DownPath = full
		}
	}
	for k, p := range out {
		if p.UpPath == "" || p.DownPath == "" {
			return nil, fmt.Errorf("missing pair for %s", k)
		}
	}
	return out, nil
}

// SortKeys orders pair keys by numeric version, then label.
func SortKeys(m map[string]*Pair) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := m[keys[i]], m[keys[j]]
		if c := migration.CompareVersions(pi.Version, pj.Version); c != 0 {
			return c < 0
		}
		return pi.Label < pj.Label
	})
	return keys
}
