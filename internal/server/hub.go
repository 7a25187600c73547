// Package server coordinates session registration, message broadcast, and
// departure notices for the chat system via the Hub type.
package server

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/tcpchat/internal/protocol"
	"github.com/Tyrowin/tcpchat/internal/store"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Hub owns the shared registries. Every history append and every change to the set of
// registered sessions happens under mu together with the fan-out it causes, so
// broadcasts are totally ordered and no removed session is ever sent to.
type Hub struct {
	mu          sync.Mutex
	sessions    *Registry
	history     *store.History
	credentials *store.Credentials
	now         func() time.Time
}

// NewHub creates a Hub around already loaded stores.
func NewHub(credentials *store.Credentials, history *store.History) *Hub {
	return &Hub{
		sessions:    NewRegistry(),
		history:     history,
		credentials: credentials,
		now:         time.Now,
	}
}

// Sessions exposes the registry of logged-in sessions.
func (h *Hub) Sessions() *Registry {
	return h.sessions
}

// History exposes the message history.
func (h *Hub) History() *store.History {
	return h.history
}

// Credentials exposes the credential store.
func (h *Hub) Credentials() *store.Credentials {
	return h.credentials
}

// ErrUsernameTaken is returned by Join when another session holds the username.
var ErrUsernameTaken = errors.New("username already logged in")

// errQueueFull is returned by Join when the welcome or the history block did not fit in
// the session's queue.
var errQueueFull = errors.New("send queue full")

// Join registers session under username. On success the session's queue receives the
// welcome status and the history block before any later broadcast, and every other
// session is told about the arrival. A session whose queue cannot take both records is
// unregistered again before anyone hears of it.
func (h *Hub) Join(session *Session, username string, created bool) error {
	h.mu.Lock()
	if !h.sessions.TryRegister(username, session) {
		h.mu.Unlock()
		return ErrUsernameTaken
	}

	welcome := protocol.WelcomeBack(username)
	if created {
		welcome = protocol.WelcomeCreated(username)
	}
	if !session.enqueue(welcome) || !session.enqueue(protocol.HistoryBlock(h.history.Snapshot())) {
		// Registry changes only happen under mu, so the entry is still ours.
		h.sessions.Unregister(username)
		h.mu.Unlock()
		return errors.Wrapf(errQueueFull, "join %s", username)
	}
	session.username = username

	failed := h.sessions.Broadcast(protocol.JoinedNotice(username, created), session)
	online := h.sessions.Len()
	h.mu.Unlock()

	session.log.WithFields(logrus.Fields{
		"username": username,
		"created":  created,
		"online":   online,
	}).Info("session joined")

	h.dropFailed(failed)
	return nil
}

// Leave unregisters session and tells the remaining sessions. It returns false when the
// session was not registered, so a departure is announced at most once.
func (h *Hub) Leave(session *Session) bool {
	h.mu.Lock()
	username := session.username
	if username == "" || !h.sessions.Remove(username, session) {
		h.mu.Unlock()
		return false
	}
	failed := h.sessions.Broadcast(protocol.LeftNotice(username), nil)
	online := h.sessions.Len()
	h.mu.Unlock()

	session.log.WithFields(logrus.Fields{
		"username": username,
		"online":   online,
	}).Info("session left")

	h.dropFailed(failed)
	return true
}

// AppendAndBroadcast records entry in the history and fans it out to every registered
// session, the sender included. A failed history write is returned after the fan-out;
// the entry is still delivered and kept in memory.
func (h *Hub) AppendAndBroadcast(entry string) error {
	h.mu.Lock()
	appendErr := h.history.Append(entry)
	failed := h.sessions.Broadcast(entry, nil)
	h.mu.Unlock()

	logger.WithField("recipients", h.sessions.Len()).Debug(entry)

	h.dropFailed(failed)
	return errors.WithMessage(appendErr, "persist message")
}

// Announce fans text out to every registered session without recording it.
func (h *Hub) Announce(text string) {
	h.mu.Lock()
	failed := h.sessions.Broadcast(text, nil)
	h.mu.Unlock()

	logger.Debug(text)
	h.dropFailed(failed)
}

// IsRegistered reports whether username is logged in.
func (h *Hub) IsRegistered(username string) bool {
	return h.sessions.IsRegistered(username)
}

// dropFailed shuts down sessions whose queues rejected a broadcast. It must be called
// without holding mu, since shutting down announces the departure.
func (h *Hub) dropFailed(failed []*Session) {
	for _, session := range failed {
		session.log.Warn("dropping session that could not accept a broadcast")
		session.abort()
	}
}

// Close releases the backing files.
func (h *Hub) Close() error {
	credErr := h.credentials.Close()
	histErr := h.history.Close()
	if credErr != nil {
		return errors.Wrap(credErr, "close credentials")
	}
	return errors.Wrap(histErr, "close history")
}
