package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cubbyfs/cubby/pkg/bufpool"
)

// Connection framing: each encoded packet is preceded on the stream by a
// 4-byte little-endian length equal to the byte count of the packet body.
// The prefix excludes its own four bytes.

// FrameHeaderSize is the length-prefix size in bytes.
const FrameHeaderSize = 4

// ReadFrame reads one length-prefixed frame from conn into a pooled buffer.
//
// The caller is responsible for returning the buffer via bufpool.Put() after
// the packet has been decoded. EOF on the length prefix is returned directly
// (not wrapped) so callers can detect normal client disconnect.
//
// A zero readTimeout disables the read deadline.
func ReadFrame(ctx context.Context, conn net.Conn, maxPacketSize int, readTimeout time.Duration) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	frameLen := binary.LittleEndian.Uint32(header[:])
	if frameLen == 0 {
		return nil, NewProtocolError("read frame", "zero-length frame")
	}
	if frameLen > uint32(maxPacketSize) {
		return nil, NewProtocolError("read frame", "frame of %d bytes exceeds max packet size (%d bytes)", frameLen, maxPacketSize)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	buf := bufpool.GetUint32(frameLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		bufpool.Put(buf)
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return buf, nil
}

// WriteFrame prefixes the encoded packet with its length and writes the whole
// frame to conn. writeMu serializes writes so a sweeper-initiated disconnect
// cannot interleave with an in-flight response.
//
// A zero writeTimeout disables the write deadline.
func WriteFrame(conn net.Conn, writeMu *sync.Mutex, writeTimeout time.Duration, encoded []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	if writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	frame := bufpool.Get(FrameHeaderSize + len(encoded))
	defer bufpool.Put(frame)

	binary.LittleEndian.PutUint32(frame, uint32(len(encoded)))
	copy(frame[FrameHeaderSize:], encoded)

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WritePacket encodes a packet and writes it as one frame.
func WritePacket(conn net.Conn, writeMu *sync.Mutex, writeTimeout time.Duration, maxPacketSize int, p *Packet) error {
	encoded, err := EncodeMax(p, maxPacketSize)
	if err != nil {
		return err
	}
	return WriteFrame(conn, writeMu, writeTimeout, encoded)
}

// ReadPacket reads one frame and decodes it into a packet. The pooled frame
// buffer is returned to the pool before ReadPacket returns.
func ReadPacket(ctx context.Context, conn net.Conn, maxPacketSize int, readTimeout time.Duration) (*Packet, error) {
	buf, err := ReadFrame(ctx, conn, maxPacketSize, readTimeout)
	if err != nil {
		return nil, err
	}
	defer bufpool.Put(buf)
	return DecodeMax(buf, maxPacketSize)
}
