package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	commonlog "portal_server/server/common/log"
)

// PubSub fans JSON payloads out over one redis channel.
type PubSub struct {
	client  *redis.Client
	channel string
}

func NewPubSub(client *redis.Client, channel string) *PubSub {
	return &PubSub{client: client, channel: channel}
}

func (p *PubSub) Publish(ctx context.Context, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, b).Err()
}

// Subscribe returns raw payloads until ctx is cancelled. The subscription is
// confirmed before Subscribe returns, so nothing published afterwards is lost.
func (p *PubSub) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					commonlog.Warnf("event=pubsub_receive action=drop status=slow_consumer channel=%s", p.channel)
				}
			}
		}
	}()
	return out, nil
}
