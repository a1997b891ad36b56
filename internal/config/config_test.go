package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_USER_ID", "")
	t.Setenv("PORT", "")
	t.Setenv("REFRESH_SCHEDULE", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "*/5 * * * *", cfg.RefreshSchedule)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.True(t, cfg.RefreshEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHAT_USER_ID", "42")
	t.Setenv("CHAT_DISPLAY_NAME", "Ada")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("REFRESH_ENABLED", "false")
	t.Setenv("TRACING_ENABLED", "not-a-bool")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "42", cfg.ChatUserID)
	assert.Equal(t, "Ada", cfg.DisplayName())
	assert.Equal(t, 10, cfg.RateLimitRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.False(t, cfg.RefreshEnabled)
	assert.False(t, cfg.TracingEnabled)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		NATSURL:           "nats://localhost:4222",
		ChatUserID:        "42",
		RateLimitRequests: 1,
		RefreshSchedule:   "*/5 * * * *",
		RefreshEnabled:    true,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "42", cfg.DisplayName())

	cfg.ChatUserID = ""
	cfg.RefreshSchedule = "every now and then"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAT_USER_ID")
	assert.Contains(t, err.Error(), "REFRESH_SCHEDULE")

	cfg.ChatUserID = "42"
	cfg.RefreshEnabled = false
	assert.NoError(t, cfg.Validate())
}
