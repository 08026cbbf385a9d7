package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/metrics"
)

// SweepInterval is how often the manager scans for idle sessions.
const SweepInterval = 60 * time.Second

// Manager tracks every live session by id and evicts the idle ones. Sessions
// register on accept and deregister when their loop exits; the sweeper only
// closes connections and lets the loops unwind themselves.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout   time.Duration
	sweepInterval time.Duration
	log           *slog.Logger
	metrics       *metrics.ServerMetrics
}

// NewManager creates a session manager evicting sessions idle longer than
// idleTimeout.
func NewManager(idleTimeout time.Duration, m *metrics.ServerMetrics, log *slog.Logger) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		idleTimeout:   idleTimeout,
		sweepInterval: SweepInterval,
		log:           log,
		metrics:       m,
	}
}

// Add registers a session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.metrics.SessionStarted()
}

// Remove deregisters a session by id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.metrics.SessionEnded()
	}
}

// Get returns the session with the given id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps for idle sessions until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep disconnects every session idle past the timeout. The disconnect
// closes the socket; the session's own loop observes the closed connection
// and deregisters.
func (m *Manager) sweep() {
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.IdleFor() > m.idleTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		m.log.Info("disconnecting idle session",
			logger.SessionID(s.ID),
			logger.ClientIP(s.ClientIP),
			slog.Duration("idle", s.IdleFor()))
		s.Disconnect("session timed out due to inactivity")
		m.metrics.IdleDisconnect()
	}
}

// DisconnectAll broadcasts a disconnect reason to every live session, used
// during server shutdown.
func (m *Manager) DisconnectAll(reason string) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Disconnect(reason)
	}
}
