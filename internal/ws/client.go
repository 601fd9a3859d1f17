package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn wraps one websocket transport. Writes are serialized by a
// per-connection mutex so broadcast and reply paths never interleave frames.
type clientConn struct {
	id      string
	rawConn *websocket.Conn
	mu      sync.Mutex

	stateMu  sync.Mutex
	userID   string
	role     string
	name     string
	channels map[string]struct{}
}

func newClientConn(id string, raw *websocket.Conn) *clientConn {
	return &clientConn{
		id:       id,
		rawConn:  raw,
		channels: make(map[string]struct{}),
	}
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

// writeEvent sends a single enveloped event to this connection only.
func (c *clientConn) writeEvent(event string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.writeJSON(Envelope{Event: event, Body: raw})
}

// bind attaches an authenticated identity to the connection.
func (c *clientConn) bind(userID, role, name string) {
	c.stateMu.Lock()
	c.userID = userID
	c.role = role
	c.name = name
	c.stateMu.Unlock()
}

// identity returns the bound user, or ok=false while unauthenticated.
func (c *clientConn) identity() (userID, role, name string, ok bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.userID, c.role, c.name, c.userID != ""
}

// markJoined records channel membership; false means the connection was
// already a member and the caller must not subscribe again.
func (c *clientConn) markJoined(channel string) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if _, ok := c.channels[channel]; ok {
		return false
	}
	c.channels[channel] = struct{}{}
	return true
}

// markLeft clears channel membership; false means the connection never
// joined it.
func (c *clientConn) markLeft(channel string) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	delete(c.channels, channel)
	return true
}

func (c *clientConn) joinedChannels() []string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
