package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("TICK_INTERVAL", "")
	t.Setenv("RECORD_BACKEND", "")

	cfg := Load()

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, "memory", cfg.RecordBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.Production())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("INSIGHT_SKIP", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://attend.example.edu, ,https://admin.example.edu")

	cfg := Load()

	assert.Equal(t, []string{"https://attend.example.edu", "https://admin.example.edu"}, cfg.AllowedOrigins)

	assert.True(t, cfg.Production())
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.False(t, cfg.InsightSkip)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "soon")
	t.Setenv("SESSION_RETENTION", "-1m")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("INSIGHT_SKIP", "maybe")

	cfg := Load()

	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 2*time.Hour, cfg.SessionRetention)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.InsightSkip)
}
