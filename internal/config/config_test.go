package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into dir for the duration of the test so no stray .env is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"KATHA_API_URL", "KATHA_STATE_DIR", "KATHA_REQUEST_TIMEOUT", "KATHA_POLL_INTERVAL",
		"KATHA_ENV", "KATHA_LOG_LEVEL", "DEBUG", "PORT", "HOST", "KATHA_JWT_SECRET",
		"KATHA_ACCESS_TTL", "KATHA_REFRESH_TTL", "KATHA_CORS_ORIGINS", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000/api/v1/", cfg.Client.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KATHA_API_URL", "https://katha.example.com/api/v1")
	t.Setenv("KATHA_POLL_INTERVAL", "5s")
	t.Setenv("KATHA_STATE_DIR", "/tmp/katha-state")
	t.Setenv("PORT", "9001")
	t.Setenv("DEBUG", "true")
	t.Setenv("KATHA_CORS_ORIGINS", "http://localhost:5173, ,https://katha.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://katha.example.com/api/v1/", cfg.Client.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "/tmp/katha-state", cfg.Client.StateDir)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173", "https://katha.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	isolate(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(wd, ".env"), []byte("KATHA_LOG_LEVEL=warn\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("KATHA_LOG_LEVEL") })
	// godotenv never overrides variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("KATHA_LOG_LEVEL"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	isolate(t)
	t.Setenv("KATHA_REQUEST_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KATHA_REQUEST_TIMEOUT")
}

func TestLoadConfig_BadURL(t *testing.T) {
	isolate(t)
	t.Setenv("KATHA_API_URL", "ftp://example.com/api/v1/")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestAuthBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://127.0.0.1:8000/api/v1/", "http://127.0.0.1:8000/api/"},
		{"https://katha.example.com/api/v1", "https://katha.example.com/api/"},
		{"https://katha.example.com/api/", "https://katha.example.com/api/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AuthBaseURL(tt.in), tt.in)
	}
}
