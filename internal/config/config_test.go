package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileRunsOnDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Utils.CacheTTL)
	assert.Equal(t, 10, cfg.Leveling.MaxLevel)
}

func TestLoad_ParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheda_config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
store:
  backend: sqlite
  sqlite_path: /tmp/scheda.db
leveling:
  max_level: 12
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/scheda.db", cfg.Store.SQLitePath)
	assert.Equal(t, 12, cfg.Leveling.MaxLevel)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: redis\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Backend = "postgres"
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Store.PostgresDSN = "postgres://localhost/scheda"
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SCHEDA_ADDR", ":7001")
	t.Setenv("SCHEDA_STORE_BACKEND", "memory")
	t.Setenv("SCHEDA_UTILS_CACHE_TTL", "90s")

	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg = FromEnv(cfg)
	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Utils.CacheTTL)
}
