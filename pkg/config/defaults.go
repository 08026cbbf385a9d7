package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cubbyfs/cubby/internal/bytesize"
)

// Default server settings.
const (
	DefaultPort                 = 9000
	DefaultMaxConcurrentClients = 100
	DefaultSessionTimeout       = 30 * time.Minute
	DefaultNetworkBufferSize    = 64 * bytesize.KiB
	DefaultMaxPacketSize        = 25 * bytesize.MiB
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConcurrentClients == 0 {
		cfg.MaxConcurrentClients = DefaultMaxConcurrentClients
	}
	if cfg.NetworkBufferSize == 0 {
		cfg.NetworkBufferSize = DefaultNetworkBufferSize
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	// ReadTimeout deliberately defaults to zero: the idle sweeper owns
	// session expiry, and a read deadline shorter than the session timeout
	// would kill healthy idle connections.
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.DataPath == "" {
		cfg.DataPath = getDataDir()
	}
	if cfg.MetadataPath == "" {
		cfg.MetadataPath = filepath.Join(cfg.DataPath, "metadata")
	}
	if cfg.FileStoragePath == "" {
		cfg.FileStoragePath = filepath.Join(cfg.DataPath, "storage")
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; the port only matters when enabled.
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// getDataDir returns the default data directory, honoring XDG_DATA_HOME
// and falling back to ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "cubby")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./cubby-data"
	}
	return filepath.Join(home, ".local", "share", "cubby")
}

// GetDefaultConfig returns a Config struct with all default values applied.
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
