package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv("LAZULI_SYNC_CONFIG", "/custom/config.toml")
	t.Setenv("LAZULI_SYNC_SERVER", "https://sync.example.com")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "https://sync.example.com", overrides.ServerURL)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv("LAZULI_SYNC_CONFIG", "")
	t.Setenv("LAZULI_SYNC_SERVER", "")

	overrides := ReadEnvOverrides()
	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.ServerURL)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "LAZULI_SYNC_CONFIG", EnvConfig)
	assert.Equal(t, "LAZULI_SYNC_SERVER", EnvServer)
}
