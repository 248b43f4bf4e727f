package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("WS_MAX_RECONNECT_ATTEMPTS", "")
	t.Setenv("WS_RECONNECT_DELAY_SECONDS", "")
	t.Setenv("ACTION_CONFIRM_TIMEOUT_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.Realtime.ReconnectDelay())
	assert.Equal(t, 10*time.Second, cfg.Realtime.ConfirmTimeout())
	assert.Equal(t, SessionStoreFile, cfg.Session.Store)
	assert.Equal(t, filepath.Join("/tmp/xdg", "incident-sync"), cfg.Session.Dir)
	assert.Equal(t, 50, cfg.Session.NotificationLogLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("BACKEND_BASE_URL", "https://api.campus.edu/")
	t.Setenv("WS_RECONNECT_DELAY_SECONDS", "0")
	t.Setenv("APP_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SessionStoreRedis, cfg.Session.Store)
	assert.Equal(t, "https://api.campus.edu", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Realtime.ReconnectDelay())
	assert.Equal(t, "127.0.0.1:9000", cfg.App.Addr())
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("SESSION_STORE", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SESSION_STORE", "")
	t.Setenv("REDIS_DB", "zero")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadAreaCatalog(t *testing.T) {
	catalog, err := LoadAreaCatalog(AreasConfig{})
	require.NoError(t, err)
	assert.Equal(t, "TI", catalog.Canonical("sistemas"))

	path := filepath.Join(t.TempDir(), "areas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
areas:
  - id: BIBLIOTECA
    name: Biblioteca
    aliases: [Library, "Centro de Información"]
`), 0o600))

	catalog, err = LoadAreaCatalog(AreasConfig{File: path})
	require.NoError(t, err)
	assert.Equal(t, "BIBLIOTECA", catalog.Canonical("centro de informacion"))
	assert.True(t, catalog.Contains([]string{"library"}, "Biblioteca"))
	assert.False(t, catalog.Contains([]string{"Biblioteca Central"}, "Biblioteca"))
}

func TestLoadAreaCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAreaCatalog(AreasConfig{File: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("areas: []\n"), 0o600))
	_, err = LoadAreaCatalog(AreasConfig{File: empty})
	assert.Error(t, err)

	noID := filepath.Join(dir, "noid.yaml")
	require.NoError(t, os.WriteFile(noID, []byte("areas:\n  - name: Biblioteca\n"), 0o600))
	_, err = LoadAreaCatalog(AreasConfig{File: noID})
	assert.Error(t, err)
}
