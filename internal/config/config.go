package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultLockTimeout = 30 * time.Second
	defaultTable       = "schema_migrations"
)

// Config is the runner configuration. Precedence, lowest first: defaults, YAML file,
// environment, command-line flags.
type Config struct {
	DSN             string `yaml:"dsn"`
	Driver          string `yaml:"driver"` // pgx | postgres | mysql; empty infers from DSN
	Dir             string `yaml:"dir"`
	JSON            bool   `yaml:"json"`
	DryRun          bool   `yaml:"dry_run"`
	LockTimeoutSec  int    `yaml:"lock_timeout_sec"`
	MigrationsTable string `yaml:"migrations_table"`
	AppliedBy       string `yaml:"applied_by"`
}

func Default() *Config {
	return &Config{
		LockTimeoutSec:  int(defaultLockTimeout / time.Second),
		MigrationsTable: defaultTable,
	}
}

// Load reads the optional YAML file at path and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg, err := LoadYAML(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return MergeEnv(cfg), nil
}

// LoadYAML decodes path over the defaults. An empty path returns the defaults.
func LoadYAML(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// envString binds string fields to environment variables.
func (c *Config) envString() map[string]*string {
	return map[string]*string{
		"DB_DSN":           &c.DSN,
		"DB_DRIVER":        &c.Driver,
		"MIGRATIONS_DIR":   &c.Dir,
		"MIGRATIONS_TABLE": &c.MigrationsTable,
		"APPLIED_BY":       &c.AppliedBy,
	}
}

// MergeEnv overrides cfg with any non-empty environment variable. Unparsable
// LOCK_TIMEOUT_SEC values are ignored.
func MergeEnv(cfg *Config) *Config {
	for key, field := range cfg.envString() {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	if v := os.Getenv("LOCK_TIMEOUT_SEC"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.LockTimeoutSec = i
		}
	}
	return cfg
}

// LockTimeout is how long to wait for the advisory lock; non-positive values use the default.
func (c *Config) LockTimeout() time.Duration {
	if c.LockTimeoutSec <= 0 {
		return defaultLockTimeout
	}
	return time.Duration(c.LockTimeoutSec) * time.Second
}
