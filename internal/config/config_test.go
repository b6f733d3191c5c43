package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "budget.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 0.5, cfg.Query.ConfidenceThreshold)
	assert.Equal(t, 2015, cfg.Ingest.YearMin)
	assert.Equal(t, 2030, cfg.Ingest.YearMax)
	assert.InDelta(t, 1e9, cfg.Ingest.SuspiciousAmount, 0.1)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BUDGET_STORE_PATH", "/tmp/other.db")
	t.Setenv("BUDGET_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}
