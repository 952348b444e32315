package config_test

import (
	"os"
	"path/filepath"
	"socialfeed/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "socialfeed.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database = "state.db"

[remote]
base_url = "http://localhost:9999"
timeout = "2s"

[feed]
page_size = 10

[account]
email = "mod@example.com"
password_hash = "$2a$04$abcdefghijklmnopqrstuuOqV1H5m7GZ0bY4y7wqQ0d3Zr1r0e7yS"
is_moderator = false
`)

	cfg, err := config.LoadConfig(path, false)
	require.NoError(t, err)

	assert.Equal(t, "state.db", cfg.Database)
	assert.Equal(t, "http://localhost:9999", cfg.Remote.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 2, cfg.Remote.MaxRetries, "unset keys keep their defaults")
	assert.Equal(t, 10, cfg.Feed.PageSize)
	assert.Equal(t, int64(211094), cfg.Feed.OwnerUserId)
	assert.Equal(t, "mod@example.com", cfg.Account.Email)
	assert.False(t, cfg.Account.IsModerator)
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, err := config.LoadConfig(missing, true)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.LoadConfig(missing, false)
	assert.Error(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken toml", `database = `},
		{"zero page size", "[feed]\npage_size = 0"},
		{"empty base url", "[remote]\nbase_url = \"\""},
		{"no credentials", "[account]\npassword = \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.content), false)
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}
