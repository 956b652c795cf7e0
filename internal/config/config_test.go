// Verifies the configuration loading logic using Viper.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if default values are set
		if cfg.Port != 8080 {
			t.Errorf("Expected default port 8080, got %d", cfg.Port)
		}
		if cfg.Database.Path != "./beatvault.db" {
			t.Errorf("Expected default db path './beatvault.db', got '%s'", cfg.Database.Path)
		}
		assert.Equal(t, "fs", cfg.Storage.Driver)
		assert.Equal(t, "./data", cfg.Storage.Path)
		assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
		assert.Equal(t, "beatvault:", cfg.Storage.Redis.Prefix)
		assert.Equal(t, 24, cfg.Scheduler.IntervalHours)
		assert.Equal(t, 200, cfg.Scheduler.MaxLogEntries)
		assert.Equal(t, 60, cfg.Scheduler.CheckIntervalSeconds)
		assert.Equal(t, "scheduler/state.json", cfg.Scheduler.StateKey)
		assert.Equal(t, 1, cfg.Scheduler.SourceConcurrency)
		assert.Equal(t, "yt-dlp", cfg.Downloader.YtdlpPath)
		assert.Equal(t, "mp3", cfg.Downloader.AudioFormat)
		assert.Equal(t, 25, cfg.Downloader.MaxItemsPerSource)
		assert.Equal(t, 30*time.Minute, cfg.Downloader.SourceTimeout())
		assert.Equal(t, "beats", cfg.Downloader.MediaPrefix)
		assert.False(t, cfg.Downloader.EnableMockProvider)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("Loads from config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		configContent := `
port: 9999
database:
  path: "/tmp/test.db"
storage:
  driver: redis
  redis:
    addr: "redis:6379"
scheduler:
  interval_hours: 6
  cron_secret: "s3cret"
unknown_setting: "should be ignored"
`
		if err := os.WriteFile("config.yml", []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if values from the file were loaded
		if cfg.Port != 9999 {
			t.Errorf("Expected port 9999, got %d", cfg.Port)
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Expected db path '/tmp/test.db', got '%s'", cfg.Database.Path)
		}
		assert.Equal(t, "redis", cfg.Storage.Driver)
		assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
		assert.Equal(t, "beatvault:", cfg.Storage.Redis.Prefix)
		assert.Equal(t, 6, cfg.Scheduler.IntervalHours)
		assert.Equal(t, "s3cret", cfg.Scheduler.CronSecret)
		assert.Equal(t, 60, cfg.Scheduler.CheckIntervalSeconds)
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("BEATVAULT_PORT", "7070")
		t.Setenv("BEATVAULT_DOWNLOADER_ENABLE_MOCK_PROVIDER", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Port)
		assert.True(t, cfg.Downloader.EnableMockProvider)
	})

	t.Run("Explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n"), 0644))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Log.Format)

		_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("Default matches an empty load", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, cfg, Default())
		assert.NoError(t, Default().Validate())
	})

	t.Run("Invalid values", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("BEATVAULT_STORAGE_DRIVER", "s3")
		_, err := Load()
		assert.ErrorContains(t, err, "storage.driver")
	})
}
