package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// Validate checks the configuration against the struct-level validation
// tags plus the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	// The packet limit has to fit a full chunk and its envelope, otherwise
	// every upload stalls on the first chunk.
	minPacket := int64(protocol.ChunkSize + 1024*1024)
	if cfg.Server.MaxPacketSize.Int64() < minPacket {
		return fmt.Errorf("server.max_packet_size must be at least %d bytes to carry a %d-byte chunk",
			minPacket, protocol.ChunkSize)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port must differ from server.port (%d)", cfg.Server.Port)
	}
	return nil
}
