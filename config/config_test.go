package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKDECK_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "/api/auth", cfg.BasePath)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 15*24*time.Hour, cfg.RefreshWindow)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 500, cfg.CacheSize)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.CacheEnabled)
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.GitHub.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKDECK_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("WORKDECK_HTTP_PORT", "9000")
	t.Setenv("WORKDECK_TRUSTED_PROXIES", "10.0.0.1,10.0.0.2")
	t.Setenv("WORKDECK_GEO_TIMEOUT", "500ms")
	t.Setenv("WORKDECK_GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("WORKDECK_GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("WORKDECK_GITHUB_REDIRECT_URL", "https://app.example/api/auth/oauth/github/callback")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxies)
	assert.Equal(t, 500*time.Millisecond, cfg.GeoTimeout)
	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, "gh-id", cfg.GitHub.ClientID)
	assert.Equal(t, "https://app.example/api/auth/oauth/github/callback", cfg.GitHub.RedirectURL)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("WORKDECK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
