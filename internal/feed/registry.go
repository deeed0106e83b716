package feed

import (
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one capture connection per session.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a session and closes the previous one if
// present. The close handshake runs outside the lock.
func (r *Registry) Replace(sessionID string, c *ws.Conn) (replaced bool) {
	r.mu.Lock()
	old, ok := r.conns[sessionID]
	r.conns[sessionID] = c
	r.mu.Unlock()
	if ok && old != nil && old != c {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		return true
	}
	return false
}

// Remove forgets c and reports true if it was still the session's connection.
func (r *Registry) Remove(sessionID string, c *ws.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[sessionID]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, sessionID)
	return true
}

// CloseAll closes every capture connection, e.g. when the session stops.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*ws.Conn)
	r.mu.Unlock()
	for _, c := range conns {
		if c != nil {
			_ = c.Close(ws.StatusNormalClosure, reason)
		}
	}
}
