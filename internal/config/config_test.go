package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: shelfeye-test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "shelfeye-test", cfg.App.Name)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, "@every 30s", cfg.Engine.TickSchedule)
	require.Equal(t, 5, cfg.Engine.MaxRetries)
	require.Equal(t, time.Minute, cfg.Engine.BackoffBase)
	require.Equal(t, 30*time.Minute, cfg.Engine.BackoffCap)
	require.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATS.URLs)
	require.False(t, cfg.Engine.SuppressOnCameraAlert)

	window, err := cfg.BusinessHours.Window()
	require.NoError(t, err)
	require.Nil(t, window)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
engine:
  tick_schedule: "@every 10s"
  max_retries: 3
  suppress_on_camera_alert: true
business_hours:
  start: "08:00"
  end: "20:00"
  timezone: UTC
  days: [monday, friday]
channels:
  email:
    enabled: true
    host: smtp.internal
    port: 25
    from: alerts@shop.local
    to: [floor@shop.local]
  sound:
    enabled: true
    optional: true
    command: aplay
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 3, cfg.Engine.MaxRetries)
	require.True(t, cfg.Engine.SuppressOnCameraAlert)
	require.True(t, cfg.Channels.Email.Enabled)
	require.Equal(t, []string{"floor@shop.local"}, cfg.Channels.Email.To)
	require.True(t, cfg.Channels.Sound.Optional)

	window, err := cfg.BusinessHours.Window()
	require.NoError(t, err)
	require.NotNil(t, window)
	require.Len(t, window.Days, 2)
	require.Equal(t, time.Monday, window.Days[0])
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  backend: cassandra\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "business_hours:\n  start: \"8am\"\n  end: \"20:00\"\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "business_hours:\n  start: \"08:00\"\n  end: \"20:00\"\n  days: [funday]\n"))
	require.Error(t, err)
}
