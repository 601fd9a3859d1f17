package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

type channel struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func newChannel() *channel { return &channel{conns: map[*clientConn]struct{}{}} }

func (ch *channel) add(c *clientConn) {
	ch.mu.Lock()
	ch.conns[c] = struct{}{}
	ch.mu.Unlock()
}

func (ch *channel) remove(c *clientConn) {
	ch.mu.Lock()
	delete(ch.conns, c)
	ch.mu.Unlock()
}

func (ch *channel) count() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.conns)
}

func (ch *channel) broadcast(msg []byte, except *clientConn) {
	// Take a quick snapshot of the current connections
	ch.mu.RLock()
	conns := make([]*clientConn, 0, len(ch.conns))
	for c := range ch.conns {
		if c == except {
			continue
		}
		conns = append(conns, c)
	}
	ch.mu.RUnlock()

	// Do the I/O outside the lock. A dead connection is dropped from this
	// channel and closed; delivery to the rest continues.
	var failed []*clientConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		ch.remove(c)
		c.rawConn.Close()
	}
}
