package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/config"
)

// ConnectionHandler serves one accepted connection. Serve blocks until the
// connection is closed or the context is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context, conn net.Conn)
}

// Listener owns the TCP accept loop: connection limiting, socket tuning,
// per-connection goroutines, and graceful shutdown.
//
// All exported methods are safe for concurrent use. Shutdown is idempotent;
// calling Stop more than once is harmless.
type Listener struct {
	cfg     config.ServerConfig
	handler ConnectionHandler
	log     *slog.Logger

	shutdownTimeout time.Duration

	listener   net.Listener
	listenerMu sync.RWMutex

	// activeConns tracks connection goroutines for the shutdown drain.
	activeConns sync.WaitGroup

	// activeSockets maps remote address to net.Conn for forced closure.
	activeSockets sync.Map

	connCount    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// ready is closed once the listener is accepting; tests block on it.
	ready chan struct{}
}

// NewListener creates a stopped listener. Call Serve to start accepting.
func NewListener(cfg config.ServerConfig, shutdownTimeout time.Duration, handler ConnectionHandler, log *slog.Logger) *Listener {
	return &Listener{
		cfg:             cfg,
		handler:         handler,
		log:             log,
		shutdownTimeout: shutdownTimeout,
		shutdown:        make(chan struct{}),
		ready:           make(chan struct{}),
	}
}

// Serve accepts connections until the context is cancelled, then drains
// active connections. Returns nil on graceful shutdown.
func (l *Listener) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.cfg.ListenAddr(), err)
	}

	l.listenerMu.Lock()
	l.listener = listener
	l.listenerMu.Unlock()
	close(l.ready)

	l.log.Info("server listening",
		slog.String("address", listener.Addr().String()),
		slog.Int("max_clients", l.cfg.MaxConcurrentClients))

	go func() {
		<-ctx.Done()
		l.initiateShutdown()
	}()

	for {
		tcpConn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return l.drain()
			default:
				l.log.Debug("accept error", logger.Err(err))
				continue
			}
		}

		// Reject rather than queue when the server is full, so clients
		// learn immediately instead of hanging in the backlog.
		if int(l.connCount.Load()) >= l.cfg.MaxConcurrentClients {
			l.log.Warn("connection rejected, server at capacity",
				slog.String("address", tcpConn.RemoteAddr().String()),
				slog.Int("max_clients", l.cfg.MaxConcurrentClients))
			_ = tcpConn.Close()
			continue
		}

		l.tuneSocket(tcpConn)

		l.activeConns.Add(1)
		l.connCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		l.activeSockets.Store(addr, tcpConn)

		l.log.Debug("connection accepted",
			slog.String("address", addr),
			slog.Int("active", int(l.connCount.Load())))

		go func(addr string, conn net.Conn) {
			defer func() {
				l.activeSockets.Delete(addr)
				l.connCount.Add(-1)
				l.activeConns.Done()
				l.log.Debug("connection closed",
					slog.String("address", addr),
					slog.Int("active", int(l.connCount.Load())))
			}()
			l.handler.Serve(ctx, conn)
		}(addr, tcpConn)
	}
}

func (l *Listener) tuneSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcp.SetNoDelay(true); err != nil {
		l.log.Debug("failed to set TCP_NODELAY", logger.Err(err))
	}
	if buf := l.cfg.NetworkBufferSize.Int(); buf > 0 {
		if err := tcp.SetReadBuffer(buf); err != nil {
			l.log.Debug("failed to set read buffer", logger.Err(err))
		}
		if err := tcp.SetWriteBuffer(buf); err != nil {
			l.log.Debug("failed to set write buffer", logger.Err(err))
		}
	}
}

// initiateShutdown stops the accept loop and interrupts blocking reads so
// connection loops notice the shutdown promptly.
func (l *Listener) initiateShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)

		l.listenerMu.Lock()
		if l.listener != nil {
			if err := l.listener.Close(); err != nil {
				l.log.Debug("error closing listener", logger.Err(err))
			}
		}
		l.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		l.activeSockets.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})
	})
}

// drain waits for connection goroutines to finish, force-closing whatever
// is left when the shutdown timeout expires.
func (l *Listener) drain() error {
	active := l.connCount.Load()
	l.log.Info("graceful shutdown, waiting for active connections",
		slog.Int("active", int(active)),
		slog.Duration("timeout", l.shutdownTimeout))

	done := make(chan struct{})
	go func() {
		l.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.log.Info("graceful shutdown complete")
		return nil
	case <-time.After(l.shutdownTimeout):
		remaining := l.connCount.Load()
		l.log.Warn("shutdown timeout exceeded, force-closing connections",
			slog.Int("active", int(remaining)))
		l.activeSockets.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates shutdown without waiting for the accept loop's drain.
func (l *Listener) Stop() {
	l.initiateShutdown()
}

// Addr returns the listening address. It blocks until the listener is ready,
// which makes it safe to call right after starting Serve in a goroutine.
func (l *Listener) Addr() string {
	<-l.ready

	l.listenerMu.RLock()
	defer l.listenerMu.RUnlock()
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

// ActiveConnections returns the current connection count.
func (l *Listener) ActiveConnections() int {
	return int(l.connCount.Load())
}
