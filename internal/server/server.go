// Package server constructs and starts the chat service: the TCP accept loop, the
// optional WebSocket gateway, and shutdown coordination.
package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Tyrowin/tcpchat/internal/protocol"
	"github.com/Tyrowin/tcpchat/internal/store"
)

// ErrServerClosed is returned by the accept loop once the listener has been shut down.
var ErrServerClosed = errors.New("chat server closed")

// Server accepts connections and runs one Session per connection.
type Server struct {
	cfg      Config
	listener net.Listener
	hub      *Hub
	gate     *semaphore.Weighted
	origins  *originPolicy

	httpServer *http.Server

	closeStores sync.Once
	storesErr   error

	mu      sync.Mutex
	active  map[*Session]struct{}
	wg      sync.WaitGroup
	closing atomic.Bool
}

// Listen binds the TCP listener described by cfg.
func Listen(cfg Config) (net.Listener, error) {
	cfg = sanitizeConfig(cfg)
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", cfg.ListenAddr())
	}
	return ln, nil
}

// New loads the backing stores named after the listener's bound address and returns a
// Server ready to Serve. The listener is owned by the Server from here on.
func New(cfg Config, ln net.Listener) (*Server, error) {
	cfg = sanitizeConfig(cfg)

	host, port, err := boundHostPort(ln.Addr())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", cfg.DataDir)
	}

	paths := store.PathsFor(cfg.DataDir, host, port)
	credentials, err := store.LoadCredentials(paths.Credentials)
	if err != nil {
		return nil, errors.Wrap(err, "set up credentials database")
	}
	history, err := store.LoadHistory(paths.Messages, cfg.HistoryLimit)
	if err != nil {
		_ = credentials.Close()
		return nil, errors.Wrap(err, "set up messages database")
	}

	srv := &Server{
		cfg:      cfg,
		listener: ln,
		hub:      NewHub(credentials, history),
		origins:  newOriginPolicy(cfg.AllowedOrigins),
		active:   make(map[*Session]struct{}),
	}
	if cfg.MaxSessions > 0 {
		srv.gate = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}

	logger.WithFields(logrus.Fields{
		"addr":         ln.Addr().String(),
		"old_messages": history.Len(),
		"users":        credentials.Len(),
	}).Info("chat server ready")
	return srv, nil
}

func boundHostPort(addr net.Addr) (string, int, error) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port, nil
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, errors.Wrapf(err, "parse listener address %s", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "parse listener port %s", portStr)
	}
	return host, port, nil
}

// Addr returns the TCP listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Serve accepts connections until ctx is cancelled or Shutdown is called. When
// WebSocketAddr is configured the gateway runs alongside the TCP listener.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop()
	})

	if s.cfg.WebSocketAddr != "" {
		s.httpServer = CreateServer(s.cfg.WebSocketAddr, s.Routes())
		httpServer := s.httpServer
		g.Go(func() error {
			logger.WithField("addr", httpServer.Addr).Info("websocket gateway listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "websocket gateway")
			}
			return ErrServerClosed
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.closeListeners()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds cfg's address, loads the stores and serves until ctx ends.
func ListenAndServe(ctx context.Context, cfg Config) error {
	ln, err := Listen(cfg)
	if err != nil {
		return err
	}
	srv, err := New(cfg, ln)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := srv.Shutdown(writeWait); err != nil {
			logger.WithError(err).Warn("shutdown incomplete")
		}
	}()
	return srv.Serve(ctx)
}

func (s *Server) acceptLoop() error {
	logger.WithField("addr", s.listener.Addr().String()).Info("waiting for clients")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			logger.WithError(err).Warn("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.Handle(protocol.NewConn(conn))
	}
}

// Handle starts a session for conn on its own goroutine and returns immediately.
// Connections over the MaxSessions bound are told the server is full and closed.
func (s *Server) Handle(conn Conn) {
	if s.gate != nil && !s.gate.TryAcquire(1) {
		logger.WithField("remote", conn.RemoteAddr().String()).Warn("rejecting connection: server full")
		go func() {
			_ = conn.WriteRecord(protocol.StatusServerFull)
			_ = conn.Close()
		}()
		return
	}

	session := NewSession(conn, s.hub, s.cfg)
	if !s.track(session) {
		if s.gate != nil {
			s.gate.Release(1)
		}
		_ = conn.Close()
		return
	}

	go func() {
		defer s.wg.Done()
		defer s.untrack(session)
		if s.gate != nil {
			defer s.gate.Release(1)
		}
		session.Run()
	}()
}

// track records a new session unless the server is closing.
func (s *Server) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.active[session] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, session)
}

func (s *Server) closeListeners() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
		logger.WithError(err).Warn("error closing listener")
	}
	if s.httpServer != nil {
		if err := s.httpServer.Close(); err != nil {
			logger.WithError(err).Warn("error closing websocket gateway")
		}
	}
}

// Shutdown stops accepting, closes every connection and waits for the sessions to end
// before releasing the backing files. It returns context.DeadlineExceeded if sessions
// are still running after timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	logger.Info("shutting down chat server")
	s.closeListeners()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.active))
	for session := range s.active {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.abort()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}

	s.closeStores.Do(func() {
		s.storesErr = s.hub.Close()
	})
	if s.storesErr != nil {
		return s.storesErr
	}
	logger.WithField("sessions", len(sessions)).Info("chat server shutdown completed")
	return nil
}
