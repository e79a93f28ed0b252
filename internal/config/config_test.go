package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 256, cfg.MaxTeams)
	assert.Equal(t, 64, cfg.Live.SubscriberBuffer)
	assert.Equal(t, 30*time.Minute, cfg.Live.SnapshotGrace)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte("TEST_ONLY_FROM_FILE=yes\nMAX_TEAMS=64\n"), 0o600))

	t.Setenv("MAX_TEAMS", "32")
	t.Setenv("TEST_ONLY_FROM_FILE", "")
	os.Unsetenv("TEST_ONLY_FROM_FILE")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LIVE_SNAPSHOT_GRACE", "5m")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.MaxTeams)
	assert.Equal(t, 5*time.Minute, cfg.Live.SnapshotGrace)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "yes", os.Getenv("TEST_ONLY_FROM_FILE"))
}

func TestLoadRejectsBadSettings(t *testing.T) {
	testCases := []struct {
		name, key, value string
	}{
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"tiny team cap", "MAX_TEAMS", "1"},
		{"no sweep", "LIVE_SWEEP_INTERVAL", "0s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
