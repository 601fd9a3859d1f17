package ws

import (
	"sync"
	"time"
)

// TypingTracker is the ephemeral typing-presence state of the room. Nothing
// here is persisted. Entries are keyed by user and reference the
// connections that announced them, so an abrupt disconnect can clear the
// user's flag instead of leaving it stuck.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[string]*typingEntry // user id -> entry
}

type typingEntry struct {
	role      string
	name      string
	conns     map[string]struct{} // conn ids that announced typing
	updatedAt time.Time
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{entries: make(map[string]*typingEntry)}
}

// Start flags the user as typing. Re-announcing is allowed; it refreshes
// the expiry clock.
func (t *TypingTracker) Start(userID, role, name, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		e = &typingEntry{role: role, name: name, conns: make(map[string]struct{})}
		t.entries[userID] = e
	}
	e.conns[connID] = struct{}{}
	e.updatedAt = time.Now()
}

// Stop clears the user's typing flag. Stopping an absent entry is a no-op.
func (t *TypingTracker) Stop(userID string) {
	t.mu.Lock()
	delete(t.entries, userID)
	t.mu.Unlock()
}

// DropConn removes one connection's claim on the user's typing entry. The
// returned body is valid only when removed is true, i.e. the entry is gone
// and a stop broadcast is due.
func (t *TypingTracker) DropConn(userID, connID string) (TypingBody, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		return TypingBody{}, false
	}
	delete(e.conns, connID)
	if len(e.conns) > 0 {
		return TypingBody{}, false
	}
	delete(t.entries, userID)
	return TypingBody{UserID: userID, Role: e.role, DisplayName: e.name}, true
}

// Expire removes entries older than ttl and returns them so the caller can
// broadcast the synthetic stop. Covers clients that crashed mid-typing.
func (t *TypingTracker) Expire(ttl time.Duration) []TypingBody {
	cutoff := time.Now().Add(-ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []TypingBody
	for uid, e := range t.entries {
		if e.updatedAt.Before(cutoff) {
			expired = append(expired, TypingBody{UserID: uid, Role: e.role, DisplayName: e.name})
			delete(t.entries, uid)
		}
	}
	return expired
}

// Typing reports whether the user currently has a typing entry.
func (t *TypingTracker) Typing(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[userID]
	return ok
}
