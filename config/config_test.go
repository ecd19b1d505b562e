package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEAVE_PORT", "")
	t.Setenv("LEAVE_DB", "")
	t.Setenv("LEAVE_LOG_LEVEL", "")
	t.Setenv("LEAVE_ROLLOVER_INTERVAL", "")
	t.Setenv("LEAVE_ALLOWED_ORIGINS", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "leave.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.RolloverInterval)
	assert.False(t, cfg.Seed)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_EnvironmentThenFlags(t *testing.T) {
	t.Setenv("LEAVE_PORT", "9090")
	t.Setenv("LEAVE_DB", "/tmp/env.db")
	t.Setenv("LEAVE_LOG_LEVEL", "debug")
	t.Setenv("LEAVE_ROLLOVER_INTERVAL", "15m")
	t.Setenv("LEAVE_ALLOWED_ORIGINS", "https://hr.example.com, https://admin.example.com")

	cfg, err := config.Load([]string{"-db", ":memory:", "-seed"})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath, "flag wins over environment")
	assert.Equal(t, 15*time.Minute, cfg.RolloverInterval)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Seed)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("LEAVE_PORT", "eighty")
	_, err := config.Load(nil)
	assert.ErrorContains(t, err, "LEAVE_PORT")

	t.Setenv("LEAVE_PORT", "")
	_, err = config.Load([]string{"-log-level", "loud"})
	assert.ErrorContains(t, err, "invalid log level")
}
