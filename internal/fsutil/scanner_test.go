package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanDirAndSortKeys(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- sql"), 0o644))
	}
	write("20250101000000_init.up.sql")
	write("20250101000000_init.down.sql")
	write("20250102000000_add.up.sql")
	write("20250102000000_add.down.sql")
	write("README.md")

	pairs, err := Scan(os.DirFS(dir), ".")
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	keys := SortKeys(pairs)
	assert.Equal(t, []string{"20250101000000:init", "20250102000000:add"}, keys)
	assert.Equal(t, "20250101000000_init.up.sql", pairs[keys[0]].UpPath)
	assert.Equal(t, "20250101000000_init", pairs[keys[0]].Name())
}

func TestScanEmbeddedRoot(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/9_b.up.sql":    {Data: []byte("-- up")},
		"migrations/9_b.down.sql":  {Data: []byte("-- down")},
		"migrations/10_a.up.sql":   {Data: []byte("-- up")},
		"migrations/10_a.down.sql": {Data: []byte("-- down")},
	}
	pairs, err := Scan(fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"9:b", "10:a"}, SortKeys(pairs))
	assert.Equal(t, "migrations/10_a.down.sql", pairs["10:a"].DownPath)
}

func TestScanMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"1_only_up.up.sql": {Data: []byte("-- up")},
	}
	_, err := Scan(fsys, ".")
	assert.ErrorContains(t, err, "missing pair for 1:only_up")
}
