package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Set is an ordered collection of Go-defined units.
type Set []Unit

// Units validates the set and returns it sorted by version, then label.
func (s Set) Units(_ context.Context) ([]Unit, error) {
	seen := make(map[string]struct{}, len(s))
	out := make([]Unit, 0, len(s))
	for _, u := range s {
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[u.Key()]; dup {
			return nil, fmt.Errorf("duplicate migration %s", u.Name)
		}
		seen[u.Key()] = struct{}{}
		out = append(out, u)
	}
	Sort(out)
	return out, nil
}

// Sort orders units by version, then label. Versions of different lengths compare numerically.
func Sort(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if c := CompareVersions(units[i].Version(), units[j].Version()); c != 0 {
			return c < 0
		}
		return units[i].Label() < units[j].Label()
	})
}

// CompareVersions compares two digit strings numerically without overflow.
func CompareVersions(a, b string) int {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
