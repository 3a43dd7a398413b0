package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Server Configuration:
// - PORT: HTTP listen port (default: 3000)
// - ADDRESS: HTTP listen address (default: 0.0.0.0)
// - PUBLIC_BASE_URL: Base URL advertised in subtitle links (default: http://127.0.0.1:3000)
//
// Storage Configuration:
// - SUBTITLE_DIR: Root directory for downloaded and translated subtitles (default: subtitles)
// - DATABASE_PATH: SQLite database path (default: data/addon.db)
//
// DeepL Configuration:
// - DEEPL_API_URL: API base URL (default: https://api-free.deepl.com/v2)
// - DEEPL_POLL_INTERVAL: Document status poll interval (default: 5s)
//
// OpenSubtitles Configuration:
// - OPENSUBTITLES_URL: OpenSubtitles v3 addon base URL (default: https://opensubtitles-v3.strem.io)
//
// System Configuration:
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - DB_PROBE_SCHEDULE: Cron expression for the database health probe (default: @every 1m)

type Config struct {
	// Server Configuration
	Server ServerConfig `json:"server"`

	// Storage Configuration
	Storage StorageConfig `json:"storage"`

	// DeepL Configuration
	DeepL DeepLConfig `json:"deepl"`

	// OpenSubtitles Configuration
	OpenSubtitles OpenSubtitlesConfig `json:"opensubtitles"`

	// System Configuration
	System SystemConfig `json:"system"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port          int    `json:"port"`
	Address       string `json:"address"`
	PublicBaseURL string `json:"public_base_url"`
}

func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// StorageConfig holds the filesystem and database configuration
type StorageConfig struct {
	SubtitleDir  string `json:"subtitle_dir"`
	DatabasePath string `json:"database_path"`
}

// DeepLConfig holds the configuration for the DeepL document API client
type DeepLConfig struct {
	APIURL       string        `json:"api_url"`
	PollInterval time.Duration `json:"poll_interval"`
}

// OpenSubtitlesConfig holds the configuration for the subtitle source
type OpenSubtitlesConfig struct {
	BaseURL string `json:"base_url"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	LogLevel        string `json:"log_level"`
	DBProbeSchedule string `json:"db_probe_schedule"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:          getEnvInt("PORT", 3000),
			Address:       getEnvString("ADDRESS", "0.0.0.0"),
			PublicBaseURL: getEnvString("PUBLIC_BASE_URL", "http://127.0.0.1:3000"),
		},
		Storage: StorageConfig{
			SubtitleDir:  getEnvString("SUBTITLE_DIR", "subtitles"),
			DatabasePath: getEnvString("DATABASE_PATH", "data/addon.db"),
		},
		DeepL: DeepLConfig{
			APIURL:       getEnvString("DEEPL_API_URL", "https://api-free.deepl.com/v2"),
			PollInterval: getEnvDuration("DEEPL_POLL_INTERVAL", 5*time.Second),
		},
		OpenSubtitles: OpenSubtitlesConfig{
			BaseURL: getEnvString("OPENSUBTITLES_URL", "https://opensubtitles-v3.strem.io"),
		},
		System: SystemConfig{
			LogLevel:        getEnvString("LOG_LEVEL", "info"),
			DBProbeSchedule: getEnvString("DB_PROBE_SCHEDULE", "@every 1m"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Storage.SubtitleDir == "" {
		return fmt.Errorf("subtitle directory is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.DeepL.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.DeepL.PollInterval)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
