package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  database_path: /tmp/test.db
matching:
  reference_prefix: "INV-"
  stop_words: ["and", "und"]
server:
  port: 9090
observability:
  logging:
    level: debug
    format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "INV-", cfg.Matching.ReferencePrefix)
	assert.Equal(t, []string{"and", "und"}, cfg.Matching.StopWords)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
}

func TestLoad_DefaultsApplyForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  database_path: custom.db
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "FEE-", cfg.Matching.ReferencePrefix)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Contains(t, cfg.Matching.PayerStopTerms, "sparkasse")
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_RECONCILE_DB", "/data/expanded.db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  database_path: ${TEST_RECONCILE_DB}
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/expanded.db", cfg.Storage.DatabasePath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "/env/db.sqlite")
	t.Setenv("RECONCILE_REFERENCE_PREFIX", "KTO-")
	t.Setenv("RECONCILE_PORT", "7001")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	assert.Equal(t, "/env/db.sqlite", cfg.Storage.DatabasePath)
	assert.Equal(t, "KTO-", cfg.Matching.ReferencePrefix)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "")
	t.Setenv("RECONCILE_PORT", "")

	cfg := LoadFromEnv()
	assert.Equal(t, "reconcile.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadOrEnv_FallsBackWhenFileAbsent(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "/env/fallback.db")

	cfg := LoadOrEnv(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, "/env/fallback.db", cfg.Storage.DatabasePath)
}
