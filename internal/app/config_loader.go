package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. OFFLINE_FETCH_TIMEOUT
const EnvPrefix = "OFFLINE"

// LoadConfig loads configuration from an optional .env file, a YAML file and
// the environment, in increasing order of precedence over the defaults
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.offline-mirror")
		v.AddConfigPath("/etc/offline-mirror")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadDotEnv exports the variables of path without overriding the
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// bindEnvKeys registers every known key so environment values reach
// Unmarshal even when no config file sets them
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.host", "server.port",
		"offline.documents_dir", "offline.session_id", "offline.logs_dir",
		"fetch.timeout", "fetch.max_retries", "fetch.retry_delay", "fetch.user_agent",
		"fetch.access_token", "fetch.api_host", "fetch.max_file_size", "fetch.concurrency",
		"sync.database_path", "sync.check_interval", "sync.max_retries",
		"sync.retry_delay", "sync.auto_start_workers",
		"notification.enabled", "notification.method",
		"logging.level", "logging.format", "logging.output_path",
	}
	for _, key := range keys {
		v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Offline.DocumentsDir = expandPath(config.Offline.DocumentsDir)
	config.Offline.LogsDir = expandPath(config.Offline.LogsDir)
	config.Sync.DatabasePath = expandPath(config.Sync.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Offline.DocumentsDir == "" {
		return fmt.Errorf("documents directory not configured")
	}

	if config.Offline.SessionID == "" {
		return fmt.Errorf("session id not configured")
	}

	if !domain.ValidatePathID(config.Offline.SessionID) {
		return fmt.Errorf("session id must be a single path component: %s", config.Offline.SessionID)
	}

	if config.Fetch.AccessToken != "" && config.Fetch.APIHost == "" {
		return fmt.Errorf("fetch.api_host is required when fetch.access_token is set")
	}

	if config.Fetch.MaxRetries < 0 || config.Sync.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch concurrency must be at least 1")
	}

	if config.Sync.DatabasePath == "" {
		return fmt.Errorf("sync database path not configured")
	}

	if config.Sync.CheckInterval <= 0 {
		return fmt.Errorf("sync check interval must be positive")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	sections := map[string]interface{}{
		"server":       config.Server,
		"offline":      config.Offline,
		"fetch":        config.Fetch,
		"sync":         config.Sync,
		"notification": config.Notification,
		"logging":      config.Logging,
	}
	for name, section := range sections {
		values, err := sectionMap(section)
		if err != nil {
			return fmt.Errorf("failed to encode %s config: %w", name, err)
		}
		v.Set(name, values)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// sectionMap flattens a config section into its mapstructure keys
func sectionMap(section interface{}) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if err := mapstructure.Decode(section, &values); err != nil {
		return nil, err
	}
	for key, value := range values {
		if d, ok := value.(time.Duration); ok {
			values[key] = d.String()
		}
	}
	return values, nil
}
