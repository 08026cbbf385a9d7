// Package client provides a connection-oriented client for the cubby wire
// protocol: framed packets over TCP with strictly one outstanding request
// per connection.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// DefaultTimeout bounds each single read or write on the connection.
const DefaultTimeout = 30 * time.Second

// Client is a cubby protocol client. All methods are safe for concurrent
// use; concurrent callers serialize on the connection, so a long transfer
// blocks other requests on the same client.
type Client struct {
	addr string

	maxPacketSize int
	timeout       time.Duration

	// reqMu enforces one outstanding request per connection: it is held
	// across the request write and the response read.
	reqMu  sync.Mutex
	sendMu sync.Mutex

	connMu sync.Mutex
	conn   net.Conn

	userMu sync.Mutex
	userID string
}

// New creates a client for the given server address. Call Connect before
// issuing requests.
func New(addr string) *Client {
	return &Client{
		addr:          addr,
		maxPacketSize: protocol.DefaultMaxPacketSize,
		timeout:       DefaultTimeout,
	}
}

// SetTimeout overrides the per-read and per-write deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetMaxPacketSize overrides the maximum accepted packet size.
func (c *Client) SetMaxPacketSize(n int) {
	c.maxPacketSize = n
}

// Connect dials the server. Connecting an already connected client closes
// the previous connection first.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Close closes the connection. The client can be reconnected with Connect.
func (c *Client) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// UserID returns the server-assigned user id after a successful login.
func (c *Client) UserID() string {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	return c.userID
}

func (c *Client) setUserID(id string) {
	c.userMu.Lock()
	c.userID = id
	c.userMu.Unlock()
}

func (c *Client) connection() (net.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// do sends one request and reads its response, holding the request lock for
// the full round trip.
func (c *Client) do(ctx context.Context, req *protocol.Packet) (*protocol.Packet, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.roundTrip(ctx, req)
}

// roundTrip performs one write-then-read exchange. Callers other than do
// must already hold reqMu; transfer loops use it to keep the lock across a
// whole chunk sequence.
func (c *Client) roundTrip(ctx context.Context, req *protocol.Packet) (*protocol.Packet, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	if err := protocol.WritePacket(conn, &c.sendMu, c.timeout, c.maxPacketSize, req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Command, err)
	}

	resp, err := protocol.ReadPacket(ctx, conn, c.maxPacketSize, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Command, err)
	}
	return resp, nil
}

// request marshals a payload, performs the round trip, and converts failure
// responses into *ServerError.
func (c *Client) request(ctx context.Context, cmd protocol.Command, payload any) (*protocol.Packet, error) {
	req, err := protocol.NewRequest(cmd, c.UserID(), payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !protocol.IsSuccess(resp) {
		return resp, responseError(resp)
	}
	return resp, nil
}
