package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAndLockTimeout(t *testing.T) {
	c := Default()
	assert.Equal(t, "schema_migrations", c.MigrationsTable)
	assert.Equal(t, 30*time.Second, c.LockTimeout())
	c.LockTimeoutSec = -1
	assert.Equal(t, 30*time.Second, c.LockTimeout())
}

func TestLoadYAMLMissingPathKeepsDefaults(t *testing.T) {
	cfg, err := LoadYAML("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLAndMergeEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	body := "dsn: postgres://u:p@localhost/cruddur\ndriver: postgres\ndir: ./migs\nlock_timeout_sec: 10\nmigrations_table: t\napplied_by: me\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	cfg, err := LoadYAML(p)
	require.NoError(t, err)
	assert.Equal(t, "./migs", cfg.Dir)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "t", cfg.MigrationsTable)
	assert.Equal(t, 10, cfg.LockTimeoutSec)

	t.Setenv("MIGRATIONS_DIR", "./x")
	t.Setenv("LOCK_TIMEOUT_SEC", "20")
	t.Setenv("MIGRATIONS_TABLE", "y")
	t.Setenv("APPLIED_BY", "you")
	t.Setenv("DB_DRIVER", "pgx")
	cfg = MergeEnv(cfg)
	assert.Equal(t, "./x", cfg.Dir)
	assert.Equal(t, "y", cfg.MigrationsTable)
	assert.Equal(t, 20, cfg.LockTimeoutSec)
	assert.Equal(t, "you", cfg.AppliedBy)
	assert.Equal(t, "pgx", cfg.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	t.Setenv("DB_DSN", "postgres://localhost/cruddur")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/cruddur", cfg.DSN)
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("dns: postgres://typo\n"), 0o644))
	_, err := LoadYAML(p)
	assert.ErrorContains(t, err, "dns")
}

func TestMergeEnvIgnoresBadLockTimeout(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT_SEC", "soon")
	cfg := MergeEnv(Default())
	assert.Equal(t, 30, cfg.LockTimeoutSec)
}

func TestLoadYAMLEmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	cfg, err := LoadYAML(p)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
