package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. TVSHOW_CATALOG_PAGE_SIZE.
const EnvPrefix = "TVSHOW"

// DefaultConfigPath returns ~/.config/tvshow/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "configs", "config.yaml")
	}
	return filepath.Join(home, ".config", "tvshow", "config.yaml")
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// A .env file in the working directory feeds the environment; real
	// environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.config/tvshow")
		v.AddConfigPath("/etc/tvshow")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath != "" && errors.Is(err, fs.ErrNotExist)) {
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

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)

	v.SetDefault("catalog.base_url", c.Catalog.BaseURL)
	v.SetDefault("catalog.page_size", c.Catalog.PageSize)
	v.SetDefault("catalog.search_debounce", c.Catalog.SearchDebounce)
	v.SetDefault("catalog.request_timeout", c.Catalog.RequestTimeout)
	v.SetDefault("catalog.rate_limit", c.Catalog.RateLimit)
	v.SetDefault("catalog.rate_burst", c.Catalog.RateBurst)
	v.SetDefault("catalog.covers_dir", c.Catalog.CoversDir)
	v.SetDefault("catalog.posters_dir", c.Catalog.PostersDir)
	v.SetDefault("catalog.user_agent", c.Catalog.UserAgent)

	v.SetDefault("playback.downloads_dir", c.Playback.DownloadsDir)
	v.SetDefault("playback.buffering_threshold", c.Playback.BufferingThreshold)
	v.SetDefault("playback.poll_interval", c.Playback.PollInterval)
	v.SetDefault("playback.playable_extensions", c.Playback.PlayableExtensions)
	v.SetDefault("playback.listen_port", c.Playback.ListenPort)
	v.SetDefault("playback.seed", c.Playback.Seed)
	v.SetDefault("playback.readahead_bytes", c.Playback.ReadaheadBytes)

	v.SetDefault("storage.database_path", c.Storage.DatabasePath)

	v.SetDefault("notification.enabled", c.Notification.Enabled)
	v.SetDefault("notification.method", c.Notification.Method)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
	v.SetDefault("logging.logs_dir", c.Logging.LogsDir)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Catalog.CoversDir = expandPath(config.Catalog.CoversDir)
	config.Catalog.PostersDir = expandPath(config.Catalog.PostersDir)
	config.Playback.DownloadsDir = expandPath(config.Playback.DownloadsDir)
	config.Storage.DatabasePath = expandPath(config.Storage.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL not configured")
	}

	if config.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog page size must be at least 1")
	}

	if config.Catalog.RateLimit <= 0 {
		return fmt.Errorf("catalog rate limit must be positive")
	}

	if config.Catalog.RateBurst < 1 {
		config.Catalog.RateBurst = 1
	}

	if config.Playback.DownloadsDir == "" {
		return fmt.Errorf("downloads directory not configured")
	}

	if t := config.Playback.BufferingThreshold; t <= 0 || t > 100 {
		return fmt.Errorf("buffering threshold must be in (0, 100]: %v", t)
	}

	if config.Playback.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if len(config.Playback.PlayableExtensions) == 0 {
		return fmt.Errorf("no playable extensions configured")
	}

	if config.Storage.DatabasePath == "" {
		return fmt.Errorf("database path not configured")
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

	v.Set("server", config.Server)
	v.Set("catalog", config.Catalog)
	v.Set("playback", config.Playback)
	v.Set("storage", config.Storage)
	v.Set("notification", config.Notification)
	v.Set("logging", config.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
