package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 1800*time.Second, cfg.Presence.TTL)
	assert.Equal(t, "redis", cfg.Events.Backend)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 12*time.Hour, cfg.Dashboard.TokenTTL)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/beadhub_test")
	t.Setenv("PORT", "9001")
	t.Setenv("PRESENCE_TTL_SECONDS", "600")
	t.Setenv("EVENT_BUS", "nats")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/beadhub_test", cfg.Database.URL)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 600*time.Second, cfg.Presence.TTL)
	assert.Equal(t, "nats", cfg.Events.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beadhub.yaml")
	yaml := `
server:
  port: 9100
database:
  url: postgres://file-host/beadhub
redis:
  url: redis://file-host:6379/1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	// Env wins over the file.
	t.Setenv("DATABASE_URL", "postgres://env-host/beadhub")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres://env-host/beadhub", cfg.Database.URL)
	assert.Equal(t, "redis://file-host:6379/1", cfg.Redis.URL)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/beadhub")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8765, cfg.Server.Port)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/beadhub")
	t.Setenv("PORT", "70000")

	_, err := Load("")
	assert.Error(t, err)
}

func TestProxySecret(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.ProxySecret())

	cfg.Auth.SessionSecret = "session"
	assert.Equal(t, "session", cfg.ProxySecret())

	cfg.Auth.InternalSecret = "internal"
	assert.Equal(t, "internal", cfg.ProxySecret())
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}
