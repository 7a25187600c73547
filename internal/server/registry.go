package server

import "sync"

// Registry maps usernames to their live sessions. It is the authoritative set of who
// is connected; every mutation is a single locked step.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// TryRegister inserts session under username unless the name is taken.
func (r *Registry) TryRegister(username string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.sessions[username]; taken {
		return false
	}
	r.sessions[username] = session
	return true
}

// Unregister removes username. It is a no-op when absent.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Remove deletes username only while it still maps to session.
func (r *Registry) Remove(username string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[username]; !ok || current != session {
		return false
	}
	delete(r.sessions, username)
	return true
}

// IsRegistered reports whether username has a live session.
func (r *Registry) IsRegistered(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[username]
	return ok
}

// Lookup returns the session registered for username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[username]
	return session, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of the registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Broadcast queues entry on every registered session except exclude and returns the
// sessions that could not accept it. A failing recipient never stops delivery to the rest.
func (r *Registry) Broadcast(entry string, exclude *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var failed []*Session
	for _, session := range r.sessions {
		if session == exclude {
			continue
		}
		if !session.enqueue(entry) {
			failed = append(failed, session)
		}
	}
	return failed
}
