package config

// Default values for configuration options: "layer 0" of the three-layer
// override chain (defaults -> config file -> environment), chosen to work
// without any config file at all.
const (
	defaultPollInterval        = "5m"
	defaultConflictStrategy    = "keep_both"
	defaultDebounceInterval    = "2s"
	defaultShutdownTimeout     = "30s"
	defaultConnectTimeout      = "10s"
	defaultDataTimeout         = "60s"
	defaultLogLevel            = "info"
	defaultLogFormat           = "auto"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Vault:   defaultVaultConfig(),
		Sync:    defaultSyncConfig(),
		Network: defaultNetworkConfig(),
		Logging: defaultLoggingConfig(),
	}
}

// defaultExtensions mirrors internal/syncvault.SyncExtensions's default key
// set. Kept as an independent literal rather than imported, so config stays
// free of a dependency on the sync engine it configures.
var defaultExtensions = []string{
	"md", "markdown", "txt",
	"png", "jpg", "jpeg", "gif", "webp", "svg",
	"pdf", "json", "yaml", "yml", "toml",
}

var defaultSkipDirs = []string{".git", ".obsidian", ".trash", "node_modules", ".sync"}

func defaultVaultConfig() VaultConfig {
	return VaultConfig{
		Extensions:   append([]string(nil), defaultExtensions...),
		SkipDirs:     append([]string(nil), defaultSkipDirs...),
		SkipDotfiles: true,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:     defaultPollInterval,
		ConflictStrategy: defaultConflictStrategy,
		DebounceInterval: defaultDebounceInterval,
		ShutdownTimeout:  defaultShutdownTimeout,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
