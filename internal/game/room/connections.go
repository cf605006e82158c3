package room

import (
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/session"
)

// Bind attaches c to t, replacing any previous connection, which is returned
// so the caller can close it outside the lock. Binding is not restricted to
// members: possession of a token is the only credential.
//
// Precondition: t.Valid() and c non-nil.
func (r *Room) Bind(t identity.Token, c *session.Conn) (replaced *session.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.connections[t]
	r.connections[t] = c
	if ok && old != c {
		return old
	}
	return nil
}

// Unbind detaches c from t if it is still the bound connection.
func (r *Room) Unbind(t identity.Token, c *session.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.connections[t]; ok && cur == c {
		delete(r.connections, t)
		return true
	}
	return false
}

// Sequenced runs fn under the room's delivery lock. An operation that runs and
// delivers its Outbox inside fn reaches connections in the order operations
// committed.
//
// Precondition: fn must not call Sequenced on the same room.
func (r *Room) Sequenced(fn func()) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	fn()
}

// Connection returns the connection bound to t.
func (r *Room) Connection(t identity.Token) (*session.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[t]
	return c, ok
}

// Heartbeat runs one mark-and-ping step. Connections that did not answer the
// previous ping are detached and returned as dead; the rest have their
// liveness flag cleared and are returned to be pinged. Membership is untouched.
// The caller closes and pings outside the lock.
func (r *Room) Heartbeat() (dead, alive []*session.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, c := range r.connections {
		if !c.TakeAlive() {
			delete(r.connections, t)
			dead = append(dead, c)
			continue
		}
		alive = append(alive, c)
	}
	return dead, alive
}

// DetachAll removes and returns every bound connection.
func (r *Room) DetachAll() []*session.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session.Conn, 0, len(r.connections))
	for t, c := range r.connections {
		out = append(out, c)
		delete(r.connections, t)
	}
	return out
}
