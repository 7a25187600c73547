// Package server manages individual chat sessions, handling the login handshake,
// the receive loop, the outbound write pump, and lifecycle control for each connection.
package server

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/tcpchat/internal/protocol"
	"github.com/Tyrowin/tcpchat/internal/store"
)

// timestampLayout renders as 2006-01-02@15:04:05.
const timestampLayout = "2006-01-02@15:04:05"

// writeWait bounds how long a closing session waits for its queue to drain.
const writeWait = 10 * time.Second

// State is a step of the session lifecycle.
type State int32

// Session states.
const (
	StateConnected State = iota
	StateAwaitingCredentials
	StateRejected
	StateRegistered
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingCredentials:
		return "awaiting-credentials"
	case StateRejected:
		return "rejected"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is the server side of one client connection.
type Session struct {
	id   uuid.UUID
	conn Conn
	hub  *Hub
	addr string

	// username is set by Hub.Join and read by Hub.Leave, both under the hub lock.
	username string

	state atomic.Int32

	send     chan string
	done     chan struct{}
	pumpDone chan struct{}

	shutdownOnce sync.Once
	closeOnce    sync.Once

	limiter          *rateLimiter
	maxMessageLength int

	log logrus.FieldLogger
}

// NewSession prepares a session for conn. Run starts it.
func NewSession(conn Conn, hub *Hub, cfg Config) *Session {
	cfg = sanitizeConfig(cfg)
	id := uuid.New()
	addr := ""
	if remote := conn.RemoteAddr(); remote != nil {
		addr = remote.String()
	}

	return &Session{
		id:               id,
		conn:             conn,
		hub:              hub,
		addr:             addr,
		send:             make(chan string, cfg.SendBuffer),
		done:             make(chan struct{}),
		pumpDone:         make(chan struct{}),
		limiter:          newRateLimiter(cfg.RateLimit),
		maxMessageLength: cfg.MaxMessageLength,
		log: logger.WithFields(logrus.Fields{
			"session": id.String(),
			"remote":  addr,
		}),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Run drives the session until the client quits or the connection fails.
func (s *Session) Run() {
	s.log.Info("connection accepted")
	go s.writePump()

	defer s.finish()

	s.setState(StateAwaitingCredentials)
	username, ok := s.authenticate()
	if !ok {
		return
	}

	s.setState(StateActive)
	s.receive(username)
}

// authenticate loops over credential pairs until one is admitted or the connection ends.
func (s *Session) authenticate() (string, bool) {
	for {
		username, err := s.conn.ReadRecord()
		if err != nil {
			s.logReadError(err, "client left before logging in")
			return "", false
		}
		password, err := s.conn.ReadRecord()
		if err != nil {
			s.logReadError(err, "client left before logging in")
			return "", false
		}

		status, admitted := s.login(username, password)
		if admitted {
			return username, true
		}
		if status == "" {
			return "", false
		}

		s.setState(StateRejected)
		s.log.WithFields(logrus.Fields{
			"username": username,
			"status":   status,
		}).Info("login rejected")
		if !s.enqueue(status) {
			return "", false
		}
		s.setState(StateAwaitingCredentials)
	}
}

// login evaluates one credential pair. Unknown usernames are provisioned on the spot.
// When admitted the welcome has already been queued by Hub.Join. An empty status
// without admission means the session cannot continue.
func (s *Session) login(username, password string) (string, bool) {
	if !store.ValidCredential(username, password) {
		return protocol.StatusInvalidCredentials, false
	}

	if s.hub.IsRegistered(username) {
		return protocol.StatusAlreadyLoggedIn, false
	}

	created := false
	stored, known := s.hub.credentials.Lookup(username)
	if !known {
		err := s.hub.credentials.Create(username, password)
		switch {
		case err == nil:
			created = true
			stored = password
		case errors.Is(err, store.ErrDuplicateUser):
			// Another session provisioned the same name first.
			stored, _ = s.hub.credentials.Lookup(username)
		default:
			s.log.WithError(err).WithField("username", username).Error("could not create account")
			return protocol.StatusCreationFailed, false
		}
	}

	if stored != password {
		return protocol.StatusInvalidPassword, false
	}

	s.setState(StateRegistered)
	if err := s.hub.Join(s, username, created); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return protocol.StatusAlreadyLoggedIn, false
		}
		// The queue cannot even take a status; give up on the connection.
		s.log.WithError(err).Warn("could not admit session")
		return "", false
	}
	return "", true
}

// receive handles chat records until quit or a read failure.
func (s *Session) receive(username string) {
	for {
		text, err := s.conn.ReadRecord()
		if err != nil {
			s.logReadError(err, "client disconnected")
			return
		}

		if text == protocol.Quit {
			s.log.WithField("username", username).Info("client quit")
			return
		}

		if strings.TrimSpace(text) == "" {
			continue
		}

		if !s.limiter.allow() {
			s.log.WithField("username", username).Warn("rate limit exceeded; discarding message")
			s.enqueue(protocol.StatusRateLimited)
			continue
		}

		entry := formatEntry(username, s.addr, s.hub.now(), text, s.maxMessageLength)
		if err := s.hub.AppendAndBroadcast(entry); err != nil {
			s.log.WithError(err).Warn("message not persisted")
		}
	}
}

func (s *Session) logReadError(err error, msg string) {
	entry := s.log.WithError(err)
	if isExpectedCloseError(err) {
		entry.Info(msg)
		return
	}
	entry.Warn(msg)
}

// formatEntry builds the history line for one chat message: line breaks become spaces
// and the text is cut to maxLength runes before the header is prepended.
func formatEntry(username, addr string, at time.Time, text string, maxLength int) string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	text = truncateRunes(text, maxLength)
	return fmt.Sprintf("[ %s - %s - %s ] : %s", username, addr, at.Format(timestampLayout), text)
}

func truncateRunes(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == maxLength {
			return text[:i]
		}
		count++
	}
	return text
}

// enqueue hands text to the write pump without blocking. It fails once the session is
// shutting down or when its queue is full.
func (s *Session) enqueue(text string) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- text:
		return true
	default:
		return false
	}
}

// writePump is the only writer to the connection.
func (s *Session) writePump() {
	defer close(s.pumpDone)

	for {
		select {
		case text := <-s.send:
			if err := s.conn.WriteRecord(text); err != nil {
				s.logWriteError(err)
				s.abort()
				return
			}
		case <-s.done:
			s.flush()
			s.closeConn()
			return
		}
	}
}

// flush writes whatever is still queued when the session ends.
func (s *Session) flush() {
	for {
		select {
		case text := <-s.send:
			if err := s.conn.WriteRecord(text); err != nil {
				s.logWriteError(err)
				return
			}
		default:
			return
		}
	}
}

func (s *Session) logWriteError(err error) {
	entry := s.log.WithError(err)
	if isExpectedCloseError(err) {
		entry.Info("connection closed while writing")
		return
	}
	entry.Warn("write failed")
}

// shutdown unregisters the session, announces the departure and stops the write pump.
func (s *Session) shutdown() {
	s.shutdownOnce.Do(func() {
		s.hub.Leave(s)
		s.setState(StateClosed)
		close(s.done)
	})
}

// abort shuts the session down and closes the connection without draining the queue.
func (s *Session) abort() {
	s.shutdown()
	s.closeConn()
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.WithError(err).Warn("error closing connection")
		}
	})
}

// finish runs when the read side ends: it shuts down and waits for the pump to drain.
func (s *Session) finish() {
	s.shutdown()

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case <-s.pumpDone:
	case <-timer.C:
		s.closeConn()
		<-s.pumpDone
	}
	s.closeConn()
	s.log.Info("connection closed")
}
