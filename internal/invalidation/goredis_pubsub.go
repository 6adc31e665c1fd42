package invalidation

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisPubSub adapts a *redis.Client to PubSubClient.
type GoRedisPubSub struct {
	Client *redis.Client
}

func NewGoRedisPubSub(client *redis.Client) *GoRedisPubSub {
	return &GoRedisPubSub{Client: client}
}

func (a *GoRedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	return a.Client.Publish(ctx, channel, message).Err()
}

func (a *GoRedisPubSub) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	sub := a.Client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	ch := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = sub.Close()
	}, nil
}
