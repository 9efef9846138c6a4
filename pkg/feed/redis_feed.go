package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowgraph/pkg/api"
)

// RedisFeed is a StatusFeed that publishes events as JSON on a Redis
// pub/sub channel, so UI backends in other processes can subscribe.
type RedisFeed struct {
	client  *redis.Client
	channel string
}

var _ api.StatusFeed = (*RedisFeed)(nil)

// NewRedisFeed creates a RedisFeed. An empty channel defaults to
// "flowgraph:status".
func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = "flowgraph:status"
	}
	return &RedisFeed{client: client, channel: channel}
}

func (f *RedisFeed) Publish(ctx context.Context, ev api.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Subscribe returns a channel of decoded status events published on the
// feed's Redis channel. The subscription ends when ctx is cancelled.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan api.StatusEvent, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan api.StatusEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev api.StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
