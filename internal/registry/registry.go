// Package registry tracks which live connections belong to which session and
// which participant owns each connection. Purely in-memory; state is lost on
// restart and clients re-derive their view from the store on reconnect.
package registry

import (
	"context"
	"sync"
)

// Conn is a live outbound channel to one client. Implementations must be safe
// for concurrent Send calls.
type Conn interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Binding ties a connection to its (session, participant) pair for the
// connection's lifetime.
type Binding struct {
	SessionID int64
	UserID    int64
	Username  string
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[Conn]struct{}
	bindings map[Conn]Binding
}

func New() *Registry {
	return &Registry{
		sessions: make(map[int64]map[Conn]struct{}),
		bindings: make(map[Conn]Binding),
	}
}

// Register adds the connection to the session's live set. Re-registering an
// already bound connection moves it to the new binding. Returns true when the
// connection was not bound before, so callers can count live connections
// without double-counting rebinds.
func (r *Registry) Register(b Binding, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, rebind := r.bindings[c]
	if rebind {
		r.removeLocked(old.SessionID, c)
	}

	if r.sessions[b.SessionID] == nil {
		r.sessions[b.SessionID] = make(map[Conn]struct{})
	}
	r.sessions[b.SessionID][c] = struct{}{}
	r.bindings[c] = b

	return !rebind
}

// Unregister removes the connection from both maps and returns its binding.
// A no-op for unknown connections; disconnects can race explicit leaves.
func (r *Registry) Unregister(c Conn) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[c]
	if !ok {
		return Binding{}, false
	}

	r.removeLocked(b.SessionID, c)
	delete(r.bindings, c)
	return b, true
}

func (r *Registry) removeLocked(sessionID int64, c Conn) {
	if conns, ok := r.sessions[sessionID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}

// BindingFor returns the (session, participant) pair owning the connection.
func (r *Registry) BindingFor(c Conn) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[c]
	return b, ok
}

// ConnectionsIn returns a point-in-time snapshot of the session's live
// connections. Broadcasters iterate the copy, so writers are never blocked by
// a slow fan-out.
func (r *Registry) ConnectionsIn(sessionID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.sessions[sessionID]))
	for c := range r.sessions[sessionID] {
		conns = append(conns, c)
	}
	return conns
}

// ParticipantConnections returns the snapshot filtered to one participant.
// A reconnecting user can own several live connections at once.
func (r *Registry) ParticipantConnections(sessionID, userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Conn
	for c := range r.sessions[sessionID] {
		if r.bindings[c].UserID == userID {
			conns = append(conns, c)
		}
	}
	return conns
}

// Count reports how many live connections a session has.
func (r *Registry) Count(sessionID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions[sessionID])
}
