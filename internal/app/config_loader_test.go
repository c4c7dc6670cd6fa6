package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garycarlyle/TVShow/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
catalog:
  page_size: 50
  search_debounce: 250ms
playback:
  buffering_threshold: 5
  playable_extensions: [".mp4", ".mkv"]
  downloads_dir: $TVSHOW_TEST_ROOT/downloads
`)
	t.Setenv("TVSHOW_TEST_ROOT", "/srv/tvshow")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 50, config.Catalog.PageSize)
	assert.Equal(t, 250*time.Millisecond, config.Catalog.SearchDebounce)
	assert.Equal(t, 5.0, config.Playback.BufferingThreshold)
	assert.Equal(t, []string{".mp4", ".mkv"}, config.Playback.PlayableExtensions)
	assert.Equal(t, "/srv/tvshow/downloads", config.Playback.DownloadsDir)

	// untouched keys keep their defaults
	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, "https://yts.mx/api/v2", config.Catalog.BaseURL)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "catalog:\n  page_size: 50\n")
	t.Setenv("TVSHOW_CATALOG_PAGE_SIZE", "10")
	t.Setenv("TVSHOW_SERVER_PORT", "9100")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, config.Catalog.PageSize)
	assert.Equal(t, 9100, config.Server.Port)
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, "storage:\n  database_path: ~/tvshow/history.db\n")
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "tvshow", "history.db"), config.Storage.DatabasePath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero page size", "catalog:\n  page_size: 0\n"},
		{"threshold above 100", "playback:\n  buffering_threshold: 150\n"},
		{"zero threshold", "playback:\n  buffering_threshold: 0\n"},
		{"zero poll interval", "playback:\n  poll_interval: 0s\n"},
		{"bad port", "server:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Catalog.PageSize = 35
	config.Playback.PollInterval = 500 * time.Millisecond
	config.Notification.Enabled = true

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 35, loaded.Catalog.PageSize)
	assert.Equal(t, 500*time.Millisecond, loaded.Playback.PollInterval)
	assert.True(t, loaded.Notification.Enabled)
}
