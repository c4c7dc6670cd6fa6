package domain

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Catalog      CatalogConfig      `mapstructure:"catalog" yaml:"catalog"`
	Playback     PlaybackConfig     `mapstructure:"playback" yaml:"playback"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// CatalogConfig configures the remote movie catalog and the page window.
type CatalogConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
	SearchDebounce time.Duration `mapstructure:"search_debounce" yaml:"search_debounce"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	CoversDir      string        `mapstructure:"covers_dir" yaml:"covers_dir"`
	PostersDir     string        `mapstructure:"posters_dir" yaml:"posters_dir"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// PlaybackConfig configures progressive downloads.
type PlaybackConfig struct {
	DownloadsDir       string        `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	BufferingThreshold float64       `mapstructure:"buffering_threshold" yaml:"buffering_threshold"` // percent
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PlayableExtensions []string      `mapstructure:"playable_extensions" yaml:"playable_extensions"`
	ListenPort         int           `mapstructure:"listen_port" yaml:"listen_port"`
	Seed               bool          `mapstructure:"seed" yaml:"seed"`
	ReadaheadBytes     int64         `mapstructure:"readahead_bytes" yaml:"readahead_bytes"`
}

// StorageConfig contains persistence configuration
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Method  string `mapstructure:"method" yaml:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir" yaml:"logs_dir"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	base := filepath.Join(os.TempDir(), "TVShow")

	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Catalog: CatalogConfig{
			BaseURL:        "https://yts.mx/api/v2",
			PageSize:       20,
			SearchDebounce: time.Second,
			RequestTimeout: 15 * time.Second,
			RateLimit:      4,
			RateBurst:      4,
			CoversDir:      filepath.Join(base, "Covers"),
			PostersDir:     filepath.Join(base, "Posters"),
			UserAgent:      "TVShow/1.0",
		},
		Playback: PlaybackConfig{
			DownloadsDir:       filepath.Join(base, "Downloads"),
			BufferingThreshold: 2.0,
			PollInterval:       time.Second,
			PlayableExtensions: []string{".mp4"},
			ListenPort:         6881,
			Seed:               false,
			ReadaheadBytes:     8 << 20,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(base, "tvshow.db"),
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    filepath.Join(base, "logs"),
		},
	}
}
