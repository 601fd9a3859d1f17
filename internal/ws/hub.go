package ws

import (
	"sync"
)

// Hub keeps connection sets per channel name: the shared room channel plus
// one private "user:<id>" channel per authenticated user.
type Hub struct {
	channels sync.Map // channel name -> *channel
}

func NewHub() *Hub { return &Hub{} }

// Broadcast is called by the Redis subscriber loop.
func (h *Hub) Broadcast(name string, msg []byte) {
	if v, ok := h.channels.Load(name); ok {
		v.(*channel).broadcast(msg, nil)
	}
}

// BroadcastExcept delivers to every member of the channel but the
// originating connection. Used for typing events to avoid self-echo.
func (h *Hub) BroadcastExcept(name string, msg []byte, except *clientConn) {
	if v, ok := h.channels.Load(name); ok {
		v.(*channel).broadcast(msg, except)
	}
}

func (h *Hub) Join(name string, c *clientConn) {
	ch, _ := h.channels.LoadOrStore(name, newChannel())
	ch.(*channel).add(c)
}

func (h *Hub) Leave(name string, c *clientConn) {
	if v, ok := h.channels.Load(name); ok {
		v.(*channel).remove(c)
	}
}

// Count reports the current membership of a channel.
func (h *Hub) Count(name string) int {
	if v, ok := h.channels.Load(name); ok {
		return v.(*channel).count()
	}
	return 0
}
