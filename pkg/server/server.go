package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/config"
	"github.com/cubbyfs/cubby/pkg/files"
	"github.com/cubbyfs/cubby/pkg/identity"
	"github.com/cubbyfs/cubby/pkg/metadata"
	"github.com/cubbyfs/cubby/pkg/metrics"
	"github.com/cubbyfs/cubby/pkg/protocol"
	"github.com/cubbyfs/cubby/pkg/storage"
)

// Server wires the stores, services, session manager, and listener into one
// runnable engine. Construction builds everything; Run starts the listener
// and blocks until shutdown.
type Server struct {
	cfg *config.Config
	log *slog.Logger

	users    *identity.Store
	fileSvc  *files.Service
	dirSvc   *files.DirectoryService
	handlers *Handlers
	manager  *Manager
	listener *Listener

	metrics    *metrics.ServerMetrics
	metricsSrv *metrics.HTTPServer
}

// New builds a server from validated configuration. The metadata and
// storage directories are created if missing.
func New(cfg *config.Config) (*Server, error) {
	log := logger.With(slog.String("component", "server"))

	var serverMetrics *metrics.ServerMetrics
	var metricsSrv *metrics.HTTPServer
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		serverMetrics = metrics.NewServerMetrics()
		metricsSrv = metrics.NewHTTPServer(cfg.Metrics.Port, log)
	}

	users, err := identity.NewStore(cfg.Storage.DataPath, log)
	if err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}

	fileStore := metadata.NewFileStore(cfg.Storage.MetadataPath, log)
	dirStore := metadata.NewDirectoryStore(cfg.Storage.MetadataPath, log)
	store := storage.New()

	fileSvc := files.NewService(fileStore, dirStore, store, cfg.Storage.FileStoragePath, log)
	dirSvc := files.NewDirectoryService(dirStore, fileStore, log)

	s := &Server{
		cfg:        cfg,
		log:        log,
		users:      users,
		fileSvc:    fileSvc,
		dirSvc:     dirSvc,
		metrics:    serverMetrics,
		metricsSrv: metricsSrv,
	}
	s.handlers = NewHandlers(users, fileSvc, dirSvc, serverMetrics, log)
	s.manager = NewManager(cfg.Server.SessionTimeout, serverMetrics, log)
	s.listener = NewListener(cfg.Server, cfg.ShutdownTimeout, s, log)
	return s, nil
}

// Run starts the sweeper, the metrics endpoint when enabled, and the accept
// loop. It blocks until ctx is cancelled, then broadcasts a disconnect to
// every session and drains the connection loops.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.manager.Run(runCtx)

	if s.metricsSrv != nil {
		go func() {
			if err := s.metricsSrv.Start(); err != nil {
				s.log.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	go func() {
		<-runCtx.Done()
		s.manager.DisconnectAll("server shutting down")
	}()

	err := s.listener.Serve(runCtx)

	if s.metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := s.metricsSrv.Shutdown(shutdownCtx); serr != nil {
			s.log.Warn("metrics server shutdown", logger.Err(serr))
		}
	}
	return err
}

// Addr returns the listening address, blocking until the listener is ready.
func (s *Server) Addr() string {
	return s.listener.Addr()
}

// Sessions returns the session manager, exposed for tests and diagnostics.
func (s *Server) Sessions() *Manager {
	return s.manager
}

// Serve runs the per-connection loop: read one packet, dispatch it through
// the session state machine, write the response, repeat. Strictly serial
// per connection; no pipelining.
func (s *Server) Serve(ctx context.Context, conn net.Conn) {
	maxPacket := s.cfg.Server.MaxPacketSize.Int()
	sess := NewSession(conn, maxPacket, s.cfg.Server.WriteTimeout, s.log)
	s.manager.Add(sess)
	defer func() {
		sess.Close()
		s.manager.Remove(sess.ID)
	}()

	sess.log.Info("session started")

	for {
		req, err := protocol.ReadPacket(ctx, conn, maxPacket, s.cfg.Server.ReadTimeout)
		if err != nil {
			s.logReadEnd(sess, err)
			return
		}

		sess.Touch()
		start := time.Now()

		resp, herr := s.handlers.Handle(sess, req)
		if resp != nil {
			if werr := sess.Send(resp); werr != nil {
				sess.log.Warn("failed to write response",
					logger.Command(req.Command.String()),
					logger.Err(werr))
				return
			}
		}

		s.metrics.ObservePacket(req.Command.String(), responseOK(resp), time.Since(start))
		sess.log.Debug("request handled",
			logger.Command(req.Command.String()),
			logger.State(sess.State().String()),
			logger.DurationMs(logger.Duration(start)))

		if herr != nil {
			if !errors.Is(herr, errCloseSession) {
				sess.log.Error("handler failed", logger.Err(herr))
			}
			return
		}
	}
}

func responseOK(resp *protocol.Packet) bool {
	return resp != nil && protocol.IsSuccess(resp)
}

// logReadEnd classifies why the read side of the loop ended. A clean EOF is
// the normal client disconnect and logs at debug.
func (s *Server) logReadEnd(sess *Session, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		sess.log.Debug("client disconnected")
	case errors.Is(err, context.Canceled):
		sess.log.Debug("session cancelled")
	case protocol.IsProtocolError(err):
		sess.log.Warn("protocol violation, closing session", logger.Err(err))
	default:
		sess.log.Debug("read failed, closing session", logger.Err(err))
	}
}
