package protocol

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Fixed per-packet overhead: version (1) + command (4) + packet id (16) +
// user id length (4) + timestamp (8) + metadata count (4) + payload length (4).
const headerOverhead = 1 + 4 + 16 + 4 + 8 + 4 + 4

// Encode serializes a packet using the default packet size limit.
func Encode(p *Packet) ([]byte, error) {
	return EncodeMax(p, DefaultMaxPacketSize)
}

// EncodeMax serializes a packet, failing with a ProtocolError when any string
// field or the total encoded size exceeds maxSize. The output round-trips
// with Decode exactly, including empty metadata and empty payload.
func EncodeMax(p *Packet, maxSize int) ([]byte, error) {
	size := headerOverhead + len(p.UserID) + len(p.Payload)
	for k, v := range p.Metadata {
		if len(k) > maxSize || len(v) > maxSize {
			return nil, NewProtocolError("encode", "metadata entry exceeds max packet size (%d bytes)", maxSize)
		}
		size += 8 + len(k) + len(v)
	}
	if len(p.UserID) > maxSize {
		return nil, NewProtocolError("encode", "user id exceeds max packet size (%d bytes)", maxSize)
	}
	if len(p.Payload) >= maxSize-headerOverhead {
		return nil, NewProtocolError("encode", "payload of %d bytes exceeds max packet size (%d bytes)", len(p.Payload), maxSize)
	}
	if size > maxSize {
		return nil, NewProtocolError("encode", "packet of %d bytes exceeds max packet size (%d bytes)", size, maxSize)
	}

	buf := make([]byte, size)
	off := 0

	buf[off] = Version
	off++

	binary.LittleEndian.PutUint32(buf[off:], uint32(p.Command))
	off += 4

	writeGUID(buf[off:], p.ID)
	off += 16

	off += putString(buf[off:], p.UserID)

	binary.LittleEndian.PutUint64(buf[off:], uint64(p.Timestamp))
	off += 8

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Metadata)))
	off += 4
	for k, v := range p.Metadata {
		off += putString(buf[off:], k)
		off += putString(buf[off:], v)
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Payload)))
	off += 4
	copy(buf[off:], p.Payload)

	return buf, nil
}

// Decode parses an encoded packet using the default packet size limit.
func Decode(buf []byte) (*Packet, error) {
	return DecodeMax(buf, DefaultMaxPacketSize)
}

// DecodeMax parses an encoded packet. It consumes the entire buffer; any
// trailing bytes, truncation, wrong version byte, or negative/oversized
// length field is a ProtocolError.
func DecodeMax(buf []byte, maxSize int) (*Packet, error) {
	if len(buf) > maxSize {
		return nil, NewProtocolError("decode", "packet of %d bytes exceeds max packet size (%d bytes)", len(buf), maxSize)
	}
	r := &reader{buf: buf}

	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, NewProtocolError("decode", "unsupported protocol version 0x%02x", version)
	}

	cmd, err := r.int32()
	if err != nil {
		return nil, err
	}

	idBytes, err := r.take(16)
	if err != nil {
		return nil, err
	}
	id := readGUID(idBytes)

	userID, err := r.str()
	if err != nil {
		return nil, err
	}

	ticks, err := r.int64()
	if err != nil {
		return nil, err
	}

	count, err := r.int32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, NewProtocolError("decode", "negative metadata count %d", count)
	}
	var metadata map[string]string
	if count > 0 {
		metadata = make(map[string]string, count)
		for i := int32(0); i < count; i++ {
			k, err := r.str()
			if err != nil {
				return nil, err
			}
			v, err := r.str()
			if err != nil {
				return nil, err
			}
			if _, dup := metadata[k]; dup {
				return nil, NewProtocolError("decode", "duplicate metadata key %q", k)
			}
			metadata[k] = v
		}
	} else {
		metadata = make(map[string]string)
	}

	payloadLen, err := r.int32()
	if err != nil {
		return nil, err
	}
	if payloadLen < 0 {
		return nil, NewProtocolError("decode", "negative payload length %d", payloadLen)
	}
	payloadBytes, err := r.take(int(payloadLen))
	if err != nil {
		return nil, err
	}
	// Copy out of the caller's buffer: frames read into pooled buffers must
	// not alias packet payloads after the buffer is returned.
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		copy(payload, payloadBytes)
	}

	if r.remaining() != 0 {
		return nil, NewProtocolError("decode", "%d trailing bytes after packet", r.remaining())
	}

	return &Packet{
		Command:   Command(cmd),
		ID:        id,
		UserID:    userID,
		Timestamp: ticks,
		Metadata:  metadata,
		Payload:   payload,
	}, nil
}

// putString writes a 4-byte LE length followed by the string bytes and
// returns the number of bytes written.
func putString(buf []byte, s string) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return 4 + len(s)
}

// writeGUID writes the UUID in little-endian Guid layout: the first three
// groups are byte-swapped, the last eight bytes are as-is.
func writeGUID(buf []byte, id uuid.UUID) {
	buf[0], buf[1], buf[2], buf[3] = id[3], id[2], id[1], id[0]
	buf[4], buf[5] = id[5], id[4]
	buf[6], buf[7] = id[7], id[6]
	copy(buf[8:16], id[8:16])
}

// readGUID reverses writeGUID.
func readGUID(buf []byte) uuid.UUID {
	var id uuid.UUID
	id[0], id[1], id[2], id[3] = buf[3], buf[2], buf[1], buf[0]
	id[4], id[5] = buf[5], buf[4]
	id[6], id[7] = buf[7], buf[6]
	copy(id[8:16], buf[8:16])
	return id
}

// reader is a bounds-checked cursor over an encoded packet.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, NewProtocolError("decode", "truncated packet: expected version byte")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, NewProtocolError("decode", "truncated packet: need %d bytes, have %d", n, r.remaining())
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) int32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *reader) int64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *reader) str() (string, error) {
	n, err := r.int32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", NewProtocolError("decode", "negative string length %d", n)
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
