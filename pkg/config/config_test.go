package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbyfs/cubby/internal/bytesize"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, DefaultMaxConcurrentClients, cfg.Server.MaxConcurrentClients)
	assert.Equal(t, DefaultSessionTimeout, cfg.Server.SessionTimeout)
	assert.Equal(t, DefaultNetworkBufferSize, cfg.Server.NetworkBufferSize)
	assert.Equal(t, DefaultMaxPacketSize, cfg.Server.MaxPacketSize)
	assert.Zero(t, cfg.Server.ReadTimeout)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	assert.NotEmpty(t, cfg.Storage.DataPath)
	assert.Equal(t, filepath.Join(cfg.Storage.DataPath, "metadata"), cfg.Storage.MetadataPath)
	assert.Equal(t, filepath.Join(cfg.Storage.DataPath, "storage"), cfg.Storage.FileStoragePath)

	assert.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
  max_concurrent_clients: 10
  session_timeout: 1m
  max_packet_size: 26MiB
storage:
  data_path: /var/lib/cubby
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.MaxConcurrentClients)
	assert.Equal(t, time.Minute, cfg.Server.SessionTimeout)
	assert.Equal(t, 26*bytesize.MiB, cfg.Server.MaxPacketSize)
	assert.Equal(t, "/var/lib/cubby", cfg.Storage.DataPath)
	assert.Equal(t, "/var/lib/cubby/metadata", cfg.Storage.MetadataPath)

	// Level is normalized, unspecified fields fall back to defaults.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestValidation(t *testing.T) {
	t.Run("PacketSizeTooSmallForChunk", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Server.MaxPacketSize = 3 * bytesize.MiB
		assert.NoError(t, Validate(cfg))

		cfg.Server.MaxPacketSize = 1536 * bytesize.KiB
		assert.Error(t, Validate(cfg))
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = "VERBOSE"
		assert.Error(t, Validate(cfg))
	})

	t.Run("BadPort", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Server.Port = 70000
		assert.Error(t, Validate(cfg))
	})

	t.Run("MetricsPortClash", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cfg.Server.Port
		assert.Error(t, Validate(cfg))
	})
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 9200
	cfg.Storage.DataPath = "/srv/cubby"
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, loaded.Server.Port)
	assert.Equal(t, "/srv/cubby", loaded.Storage.DataPath)
}
