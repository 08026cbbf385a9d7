package server

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/metadata"
	"github.com/cubbyfs/cubby/pkg/protocol"
)

// MaxFailedLoginAttempts is the number of failed logins after which the
// session is forcibly disconnected.
const MaxFailedLoginAttempts = 5

// State is the session's position in the protocol conversation. Each state
// accepts a fixed set of commands; anything else gets an error response
// naming the state.
type State int

const (
	// StateAuthRequired accepts only LOGIN_REQUEST and CREATE_ACCOUNT_REQUEST.
	StateAuthRequired State = iota

	// StateAuthenticated accepts metadata operations and transfer inits.
	StateAuthenticated

	// StateTransferUpload accepts upload chunks and the upload completion.
	StateTransferUpload

	// StateTransferDownload accepts chunk requests and the download completion.
	StateTransferDownload

	// StateDisconnecting is terminal; every command gets an error response.
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateAuthRequired:
		return "AuthRequired"
	case StateAuthenticated:
		return "Authenticated"
	case StateTransferUpload:
		return "Transfer(upload)"
	case StateTransferDownload:
		return "Transfer(download)"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Session holds the per-connection conversation state. A session is owned by
// a single connection loop; the only cross-goroutine callers are the idle
// sweeper and the shutdown broadcast, both of which go through Disconnect.
type Session struct {
	ID       string
	ClientIP string

	conn net.Conn
	log  *slog.Logger

	// sendMu serializes packet writes so a sweeper-initiated disconnect
	// notice cannot interleave with an in-flight response.
	sendMu    sync.Mutex
	closeOnce sync.Once

	writeTimeout  time.Duration
	maxPacketSize int

	mu           sync.Mutex
	state        State
	userID       string
	username     string
	failedLogins int
	transfer     *metadata.FileMetadata

	lastActivity atomic.Int64 // unix nanoseconds
}

// NewSession wraps an accepted connection in a fresh AuthRequired session.
func NewSession(conn net.Conn, maxPacketSize int, writeTimeout time.Duration, log *slog.Logger) *Session {
	id := uuid.New().String()
	clientIP := ""
	if addr := conn.RemoteAddr(); addr != nil {
		clientIP = addr.String()
	}

	s := &Session{
		ID:            id,
		ClientIP:      clientIP,
		conn:          conn,
		log:           log.With(logger.SessionID(id), logger.ClientIP(clientIP)),
		writeTimeout:  writeTimeout,
		maxPacketSize: maxPacketSize,
		state:         StateAuthRequired,
	}
	s.Touch()
	return s
}

// Touch records activity, deferring the idle sweep.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor reports how long the session has been without traffic.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// State returns the current conversation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the authenticated user id, or empty before login.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Username returns the authenticated username, or empty before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Authenticate moves the session to Authenticated and binds the user.
func (s *Session) Authenticate(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.userID = userID
	s.username = username
	s.failedLogins = 0
}

// RecordLoginFailure bumps the per-session failure counter and reports
// whether the limit has been reached.
func (s *Session) RecordLoginFailure() (attempts int, limitReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedLogins++
	return s.failedLogins, s.failedLogins >= MaxFailedLoginAttempts
}

// BeginTransfer enters the chunk-exchange sub-state bound to one file.
func (s *Session) BeginTransfer(state State, file *metadata.FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.transfer = file
}

// EndTransfer drops the transfer binding and returns to Authenticated.
func (s *Session) EndTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTransferUpload || s.state == StateTransferDownload {
		s.state = StateAuthenticated
	}
	s.transfer = nil
}

// TransferFile returns the file bound to the current transfer, or nil.
func (s *Session) TransferFile() *metadata.FileMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer
}

// SetDisconnecting marks the session terminal. Returns false if it already was.
func (s *Session) SetDisconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnecting {
		return false
	}
	s.state = StateDisconnecting
	s.transfer = nil
	return true
}

// Send writes one packet on the session's connection.
func (s *Session) Send(p *protocol.Packet) error {
	return protocol.WritePacket(s.conn, &s.sendMu, s.writeTimeout, s.maxPacketSize, p)
}

// Disconnect sends a best-effort ERROR notice carrying the reason, then
// closes the connection. Safe to call from any goroutine and more than once;
// only the first call does anything.
func (s *Session) Disconnect(reason string) {
	s.closeOnce.Do(func() {
		s.SetDisconnecting()

		notice := protocol.NewPacket(protocol.Error, s.UserID())
		notice.SetMeta(protocol.MetaSuccess, "false")
		notice.SetMeta(protocol.MetaMessage, reason)
		if data, err := protocol.MarshalPayload(&protocol.StatusPayload{Success: false, Message: reason}); err == nil {
			notice.Payload = data
		}
		if err := s.Send(notice); err != nil {
			s.log.Debug("disconnect notice not delivered", logger.Err(err))
		}

		if err := s.conn.Close(); err != nil {
			s.log.Debug("error closing connection", logger.Err(err))
		}
		s.log.Info("session disconnected", slog.String("reason", reason))
	})
}

// Close closes the connection without a notice, for loop teardown after the
// peer is already gone.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.SetDisconnecting()
		if err := s.conn.Close(); err != nil {
			s.log.Debug("error closing connection", logger.Err(err))
		}
	})
}
