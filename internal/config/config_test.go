package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "sqlite", cfg.DBDriver)
		assert.Equal(t, "https://services.leadconnectorhq.com", cfg.CRMBaseURL)
		assert.Equal(t, time.Second, cfg.PollInterval)
		assert.Zero(t, cfg.LookupRPS)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9191")
		t.Setenv("CRM_API_KEY", "key-1")
		t.Setenv("CRM_LOCATION_ID", "loc-1")
		t.Setenv("POLL_INTERVAL", "250ms")
		t.Setenv("LOOKUP_RPS", "2.5")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "9191", cfg.Port)
		assert.Equal(t, "key-1", cfg.CRMAPIKey)
		assert.Equal(t, "loc-1", cfg.CRMLocationID)
		assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 2.5, cfg.LookupRPS)
	})

	t.Run("rejects bad poll interval", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "soon")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "POLL_INTERVAL")
	})

	t.Run("rejects non-positive poll interval", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "0s")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "must be positive")
	})

	t.Run("rejects bad rate", func(t *testing.T) {
		t.Setenv("LOOKUP_RPS", "fast")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "LOOKUP_RPS")
	})
}

func TestAllowedOrigins(t *testing.T) {
	t.Run("defaults to the web client", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"https://web.whatsapp.com"}, cfg.AllowedOrigins)
	})

	t.Run("comma separated list", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", " https://a.example , https://b.example,")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	})
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://web.whatsapp.com/"}
	assert.True(t, OriginAllowed(allowed, ""), "non-browser clients send no origin")
	assert.True(t, OriginAllowed(allowed, "https://web.whatsapp.com"))
	assert.True(t, OriginAllowed(allowed, "HTTPS://WEB.WHATSAPP.COM"))
	assert.False(t, OriginAllowed(allowed, "https://evil.example"))
	assert.False(t, OriginAllowed(nil, "https://web.whatsapp.com"))
	assert.True(t, OriginAllowed([]string{"*"}, "https://anything.example"))
}
