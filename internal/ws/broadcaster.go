package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Broadcaster delivers an enveloped event to every connection joined to a
// channel, in publish order per channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, payload any) error
}

// RedisBroadcaster publishes envelopes through Redis Pub/Sub; the
// subscription manager on the consuming side feeds them into the Hub.
type RedisBroadcaster struct {
	rdb *redis.Client
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, channel, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Envelope{Event: event, Body: body})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelKey(channel), raw).Err()
}

// channelKey maps a logical channel name onto its Redis Pub/Sub key.
func channelKey(channel string) string {
	return "chat:" + channel + ":events"
}
