package protocol

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedConn wraps a net.Conn and serves reads in small slices to exercise
// partial reads across frame boundaries.
type chunkedConn struct {
	net.Conn
	max int
}

func (c *chunkedConn) Read(p []byte) (int, error) {
	if len(p) > c.max {
		p = p[:c.max]
	}
	return c.Conn.Read(p)
}

func TestFraming(t *testing.T) {
	newPair := func(t *testing.T) (net.Conn, net.Conn) {
		client, server := net.Pipe()
		t.Cleanup(func() {
			client.Close()
			server.Close()
		})
		return client, server
	}

	t.Run("RoundTripSequence", func(t *testing.T) {
		client, server := newPair(t)

		packets := []*Packet{
			NewPacket(LoginRequest, ""),
			NewPacket(FileListRequest, "user-1"),
			NewPacket(LogoutRequest, "user-1"),
		}
		packets[1].SetMeta("k", "v")
		packets[2].Payload = []byte("bye")

		var mu sync.Mutex
		go func() {
			for _, p := range packets {
				_ = WritePacket(client, &mu, 0, DefaultMaxPacketSize, p)
			}
		}()

		for _, want := range packets {
			got, err := ReadPacket(context.Background(), server, DefaultMaxPacketSize, time.Second)
			require.NoError(t, err)
			assert.Equal(t, want.Command, got.Command)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Metadata, got.Metadata)
			assert.Equal(t, want.Payload, got.Payload)
		}
	})

	t.Run("SurvivesArbitraryReadChunking", func(t *testing.T) {
		client, server := newPair(t)
		chunked := &chunkedConn{Conn: server, max: 3}

		p := NewPacket(FileUploadInitRequest, "user-1")
		p.SetMeta(MetaDirectoryID, "dir-1")
		p.Payload = []byte(`{"FileName":"a.txt","FileSize":100,"ContentType":"text/plain"}`)

		var mu sync.Mutex
		go func() {
			_ = WritePacket(client, &mu, 0, DefaultMaxPacketSize, p)
		}()

		got, err := ReadPacket(context.Background(), chunked, DefaultMaxPacketSize, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, p.Payload, got.Payload)
		assert.Equal(t, p.Metadata, got.Metadata)
	})

	t.Run("RejectsOversizedFrame", func(t *testing.T) {
		client, server := newPair(t)

		go func() {
			// Hand-written frame header claiming a body far past the limit.
			_, _ = client.Write([]byte{0xff, 0xff, 0xff, 0x7f})
		}()

		_, err := ReadFrame(context.Background(), server, 1024, time.Second)
		require.Error(t, err)
		assert.True(t, IsProtocolError(err))
	})

	t.Run("RejectsZeroLengthFrame", func(t *testing.T) {
		client, server := newPair(t)

		go func() {
			_, _ = client.Write([]byte{0x00, 0x00, 0x00, 0x00})
		}()

		_, err := ReadFrame(context.Background(), server, 1024, time.Second)
		require.Error(t, err)
		assert.True(t, IsProtocolError(err))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		_, server := newPair(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ReadFrame(ctx, server, 1024, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
