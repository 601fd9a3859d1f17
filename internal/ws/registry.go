package ws

import "sync"

// registry tracks every live connection and which user, if any, each one is
// bound to. It replaces the process-wide "current socket" global of older
// designs: the server owns exactly one instance.
type registry struct {
	mu     sync.Mutex
	conns  map[string]*clientConn         // conn id -> conn
	byUser map[string]map[string]struct{} // user id -> conn ids
}

func newRegistry() *registry {
	return &registry{
		conns:  make(map[string]*clientConn),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (r *registry) add(c *clientConn) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

// bind records the authenticated user for a connection. Must be called
// after the identity is set on the conn itself.
func (r *registry) bind(c *clientConn, userID string) {
	r.mu.Lock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[c.id] = struct{}{}
	r.mu.Unlock()
}

// unbind drops the connection's claim on a user while the connection stays
// live. Used when a connection re-authenticates as someone else.
func (r *registry) unbind(c *clientConn, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.byUser[userID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// remove drops the connection and reports the bound user id plus whether
// this was that user's last live connection.
func (r *registry) remove(c *clientConn) (userID string, last bool) {
	userID, _, _, _ = c.identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c.id)
	if userID == "" {
		return "", false
	}
	if set, ok := r.byUser[userID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(r.byUser, userID)
			return userID, true
		}
	}
	return userID, false
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
