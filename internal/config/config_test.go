package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.Vault.Extensions)
	assert.NotEmpty(t, cfg.Vault.SkipDirs)
	assert.True(t, cfg.Vault.SkipDotfiles)

	assert.Equal(t, "5m", cfg.Sync.PollInterval)
	assert.Equal(t, "keep_both", cfg.Sync.ConflictStrategy)
	assert.Equal(t, "2s", cfg.Sync.DebounceInterval)
	assert.Equal(t, "30s", cfg.Sync.ShutdownTimeout)

	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "60s", cfg.Network.DataTimeout)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
}
