// This file defines the configuration structure for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type StorageConfig struct {
	Driver string      `mapstructure:"driver"` // fs, memory or redis
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type SchedulerConfig struct {
	IntervalHours        int    `mapstructure:"interval_hours"`
	MaxLogEntries        int    `mapstructure:"max_log_entries"`
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds"`
	StateKey             string `mapstructure:"state_key"`
	RunLockPath          string `mapstructure:"run_lock_path"`
	SourceConcurrency    int    `mapstructure:"source_concurrency"`
	CronSecret           string `mapstructure:"cron_secret"`
}

type DownloaderConfig struct {
	YtdlpPath            string `mapstructure:"ytdlp_path"`
	WorkDir              string `mapstructure:"work_dir"`
	AudioFormat          string `mapstructure:"audio_format"`
	CookiesPath          string `mapstructure:"cookies_path"`
	SourceTimeoutMinutes int    `mapstructure:"source_timeout_minutes"`
	MaxItemsPerSource    int    `mapstructure:"max_items_per_source"`
	MediaPrefix          string `mapstructure:"media_prefix"`
	EnableMockProvider   bool   `mapstructure:"enable_mock_provider"`
}

// SourceTimeout is the per-source deadline given to the executor.
func (d DownloaderConfig) SourceTimeout() time.Duration {
	return time.Duration(d.SourceTimeoutMinutes) * time.Minute
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port       int              `mapstructure:"port"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Log        LogConfig        `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./beatvault.db")

	v.SetDefault("storage.driver", "fs")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "beatvault:")

	v.SetDefault("scheduler.interval_hours", 24)
	v.SetDefault("scheduler.max_log_entries", 200)
	v.SetDefault("scheduler.check_interval_seconds", 60)
	v.SetDefault("scheduler.state_key", "scheduler/state.json")
	v.SetDefault("scheduler.run_lock_path", "")
	v.SetDefault("scheduler.source_concurrency", 1)
	v.SetDefault("scheduler.cron_secret", "")

	v.SetDefault("downloader.ytdlp_path", "yt-dlp")
	v.SetDefault("downloader.work_dir", "./tmp/downloads")
	v.SetDefault("downloader.audio_format", "mp3")
	v.SetDefault("downloader.cookies_path", "")
	v.SetDefault("downloader.source_timeout_minutes", 30)
	v.SetDefault("downloader.max_items_per_source", 25)
	v.SetDefault("downloader.media_prefix", "beats")
	v.SetDefault("downloader.enable_mock_provider", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &config
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// the current directory for config.yml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // name of config file (without extension)
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}

	// BEATVAULT_STORAGE_DRIVER overrides `storage.driver`, and so on.
	v.SetEnvPrefix("BEATVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "fs", "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	if c.Scheduler.IntervalHours <= 0 {
		return fmt.Errorf("scheduler.interval_hours must be positive")
	}
	if c.Scheduler.CheckIntervalSeconds < 0 {
		return fmt.Errorf("scheduler.check_interval_seconds must not be negative")
	}
	return nil
}
