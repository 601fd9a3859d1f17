package ws

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// subscriptionManager guarantees **exactly one** Redis subscription per
// channel key, no matter how many websocket connections join the same
// channel. A single reader goroutine per channel preserves send order.
type subscriptionManager struct {
	rdb  *redis.Client
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // channel name -> subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(rdb *redis.Client, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		rdb:  rdb,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe ensures the process is subscribed to the channel's Pub/Sub key;
// subsequent calls for the same channel only increment the ref-counter.
func (sm *subscriptionManager) Subscribe(channel string) {
	sm.mu.Lock()
	if e, ok := sm.subs[channel]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	// First consumer → create Redis SUB and fan-out loop.
	ctx, cancel := context.WithCancel(context.Background())
	ps := sm.rdb.Subscribe(ctx, channelKey(channel))

	sm.subs[channel] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go func() {
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok { // Redis connection closed.
					return
				}
				sm.hub.Broadcast(channel, []byte(m.Payload))
			}
		}
	}()
}

// Unsubscribe decrements the ref-counter and tears the Redis SUB down when
// the last websocket connection leaves the channel.
func (sm *subscriptionManager) Unsubscribe(channel string) {
	sm.mu.Lock()
	e, ok := sm.subs[channel]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, channel)
	sm.mu.Unlock()

	// Outside the lock → stop the fan-out goroutine.
	e.cancel()
}
