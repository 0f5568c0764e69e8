package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "PORT", "LOG_LEVEL", "STORAGE_PATH", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_INGEST_INGEST_STORE_BACKEND", StoreBackendMemory)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreBackendMemory, cfg.Ingest.StoreBackend)
	assert.Equal(t, 450, cfg.Ingest.FlushThreshold)
	assert.Equal(t, "ILS", cfg.Ingest.Currency)
	assert.Equal(t, 2*time.Minute, cfg.Ingest.FetchTimeout)
	assert.False(t, cfg.Ingest.Archive)
	assert.Equal(t, 2, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 2, cfg.RateLimit.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "catalog-ingest", cfg.Telemetry.ServiceName)
}

func TestLoadUnprefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/catalog")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_PATH", "/srv/buckets")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreBackendPostgres, cfg.Ingest.StoreBackend)
	assert.Equal(t, "postgres://u:p@db:5432/catalog", cfg.Database.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/srv/buckets", cfg.Storage.BasePath)
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://fallback")
	t.Setenv("CATALOG_INGEST_DATABASE_URL", "postgres://primary")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.Database.URL)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
ingest:
  store_backend: memory
  flush_threshold: 300
  currency: EUR
  fetch_timeout: 45s
  archive: true
logging:
  level: warn
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Ingest.FlushThreshold)
	assert.Equal(t, "EUR", cfg.Ingest.Currency)
	assert.Equal(t, 45*time.Second, cfg.Ingest.FetchTimeout)
	assert.True(t, cfg.Ingest.Archive)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "postgres without url",
			content: "ingest:\n  store_backend: postgres\n",
			wantErr: "database.url",
		},
		{
			name:    "unknown backend",
			content: "ingest:\n  store_backend: firestore\n",
			wantErr: "invalid ingest.store_backend",
		},
		{
			name:    "non-positive threshold",
			content: "ingest:\n  store_backend: memory\n  flush_threshold: 0\n",
			wantErr: "invalid ingest.flush_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
