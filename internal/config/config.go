// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for lazuli-sync.
package config

// Config is the top-level configuration structure, decoded from a single
// TOML file. Unlike a multi-drive tool's config, lazuli-sync has no
// profile/drive sections: which vaults are synced is tracked by the
// StateStore, not by this file.
type Config struct {
	Vault   VaultConfig   `toml:"vault"`
	Sync    SyncConfig    `toml:"sync"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
}

// VaultConfig controls which files the scanner includes by default when a
// new vault is connected.
type VaultConfig struct {
	Extensions   []string `toml:"extensions"`
	SkipDirs     []string `toml:"skip_dirs"`
	SkipDotfiles bool     `toml:"skip_dotfiles"`
}

// SyncConfig controls the Engine's cycle behavior.
type SyncConfig struct {
	PollInterval     string `toml:"poll_interval"`
	AdditiveOnly     bool   `toml:"additive_only"`
	ConflictStrategy string `toml:"conflict_strategy"`
	DebounceInterval string `toml:"debounce_interval"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`
}

// NetworkConfig controls HTTP client behavior toward the sync server.
type NetworkConfig struct {
	ServerURL      string `toml:"server_url"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}
