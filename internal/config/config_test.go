package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "0 * * * *", cfg.GasChecker.Cron)
	assert.Equal(t, "Europe/London", cfg.GasChecker.Timezone)
	assert.Equal(t, 30, cfg.GasChecker.LookaheadDays)
	assert.Equal(t, 30*24*time.Hour, cfg.GasChecker.Lookahead())
	assert.Equal(t, 10*time.Second, cfg.GasChecker.FetchTimeout)
	assert.Equal(t, 2, cfg.GasChecker.FetchRetries)
	assert.Equal(t, "gas_checker_logs", cfg.Store.LogsTable)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins())
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GAS_CHECKER_CRON", "0 9 * * 1")
	t.Setenv("GAS_CHECKER_TZ", "UTC")
	t.Setenv("GAS_CHECKER_LOOKAHEAD_DAYS", "14")
	t.Setenv("GAS_CHECKER_FETCH_TIMEOUT", "250ms")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/gas?sslmode=disable")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0 9 * * 1", cfg.GasChecker.Cron)
	assert.Equal(t, 14, cfg.GasChecker.LookaheadDays)
	assert.Equal(t, 250*time.Millisecond, cfg.GasChecker.FetchTimeout)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins())
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":      {"STORE_BACKEND": "redis"},
		"supabase without key": {"STORE_BACKEND": "supabase", "SUPABASE_URL": "https://x.supabase.co"},
		"postgres without dsn": {"STORE_BACKEND": "postgres"},
		"bad timezone":         {"GAS_CHECKER_TZ": "Mars/Olympus"},
		"zero lookahead":       {"GAS_CHECKER_LOOKAHEAD_DAYS": "0"},
		"negative retries":     {"GAS_CHECKER_FETCH_RETRIES": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GAS_CHECKER_CERTIFICATE_SET=bristol\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("GAS_CHECKER_CERTIFICATE_SET") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bristol", cfg.GasChecker.CertificateSet)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	_, err := Load()
	assert.NoError(t, err)
}

func TestLoadServicesConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  gaschecker:
    enabled: true
    port: 9090
    description: test
`), 0o600))

	cfg, err := LoadServicesConfigFromPath(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled("gaschecker"))
	assert.Equal(t, 9090, cfg.GetSettings("gaschecker").Port)
	assert.False(t, cfg.IsEnabled("other"))
}

func TestLoadServicesConfigFromPath_RequiresPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  gaschecker:\n    enabled: true\n"), 0o600))

	_, err := LoadServicesConfigFromPath(path)
	assert.ErrorContains(t, err, "port is required")
}

func TestLoadServicesConfigOrDefault(t *testing.T) {
	cfg := LoadServicesConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, cfg.IsEnabled("gaschecker"))
	assert.Equal(t, 8080, cfg.GetSettings("gaschecker").Port)
}
