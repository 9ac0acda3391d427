package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Offline      OfflineConfig      `mapstructure:"offline"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// OfflineConfig describes where mirrored content lives on disk
type OfflineConfig struct {
	DocumentsDir string `mapstructure:"documents_dir"`
	SessionID    string `mapstructure:"session_id"`
	LogsDir      string `mapstructure:"logs_dir"`
}

// FetchConfig contains network fetch configuration
type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	UserAgent   string        `mapstructure:"user_agent"`
	AccessToken string        `mapstructure:"access_token"`
	APIHost     string        `mapstructure:"api_host"` // only this host receives AccessToken
	MaxFileSize int64         `mapstructure:"max_file_size"`
	Concurrency int           `mapstructure:"concurrency"` // parallel asset downloads per page
}

// SyncConfig contains sync job queue configuration
type SyncConfig struct {
	DatabasePath     string        `mapstructure:"database_path"`
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Offline: OfflineConfig{
			DocumentsDir: "$HOME/Documents",
			SessionID:    "default",
			LogsDir:      "$HOME/.offline-mirror/logs",
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			MaxRetries:  2,
			RetryDelay:  time.Second,
			UserAgent:   "offline-mirror/1.0",
			MaxFileSize: 100 * 1024 * 1024,
			Concurrency: 6,
		},
		Sync: SyncConfig{
			DatabasePath:     "$HOME/.offline-mirror/sync.db",
			CheckInterval:    5 * time.Second,
			MaxRetries:       3,
			RetryDelay:       30 * time.Second,
			AutoStartWorkers: true,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
