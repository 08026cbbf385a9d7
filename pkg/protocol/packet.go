package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Protocol constants.
const (
	// Version is the wire protocol version byte.
	Version byte = 0x01

	// DefaultMaxPacketSize bounds the encoded size of a single packet.
	// Must exceed ChunkSize plus header and metadata overhead so that a
	// full chunk frame always fits.
	DefaultMaxPacketSize = 25 << 20

	// ChunkSize is the fixed transfer chunk size (1 MiB).
	ChunkSize = 1 << 20
)

// Timestamp tick conversion. Ticks are 100ns units since 0001-01-01T00:00:00Z,
// so a Unix time maps to unix*ticksPerSecond + epochOffsetTicks.
const (
	ticksPerSecond   = 10_000_000
	epochOffsetTicks = 621_355_968_000_000_000
)

// Packet is the unit of exchange on the wire.
//
// A packet is stack-local: it is owned by the handler that received it and is
// never shared across connections.
type Packet struct {
	// Command identifies the operation.
	Command Command

	// ID is a fresh 128-bit identifier per packet.
	ID uuid.UUID

	// UserID is the authenticated user id; empty before authentication.
	UserID string

	// Timestamp is a 100ns tick count since 0001-01-01 UTC.
	Timestamp int64

	// Metadata carries string key/value pairs; keys are unique and
	// insertion order is irrelevant.
	Metadata map[string]string

	// Payload is an arbitrary byte sequence, possibly empty.
	Payload []byte
}

// NewPacket creates a packet with a fresh id and the current timestamp.
func NewPacket(cmd Command, userID string) *Packet {
	return &Packet{
		Command:   cmd,
		ID:        uuid.New(),
		UserID:    userID,
		Timestamp: TimeToTicks(time.Now()),
		Metadata:  make(map[string]string),
	}
}

// TimeToTicks converts a time.Time to 100ns ticks since year 1.
func TimeToTicks(t time.Time) int64 {
	return t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100 + epochOffsetTicks
}

// TicksToTime converts 100ns ticks since year 1 back to a time.Time in UTC.
func TicksToTime(ticks int64) time.Time {
	unixTicks := ticks - epochOffsetTicks
	sec := unixTicks / ticksPerSecond
	nsec := (unixTicks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// Time returns the packet timestamp as a time.Time.
func (p *Packet) Time() time.Time {
	return TicksToTime(p.Timestamp)
}

// SetMeta sets a metadata key, allocating the map when needed.
func (p *Packet) SetMeta(key, value string) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	p.Metadata[key] = value
}

// Meta returns the metadata value for key, or "" when absent.
func (p *Packet) Meta(key string) string {
	return p.Metadata[key]
}

// MetaOK returns the metadata value for key and whether it was present.
func (p *Packet) MetaOK(key string) (string, bool) {
	v, ok := p.Metadata[key]
	return v, ok
}
