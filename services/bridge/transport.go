package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

const DefaultChannel = "checkout:bridge"

var ErrAlreadySubscribed = errors.New("bridge transport already subscribed")

// LocalTransport delivers envelopes within one process.
type LocalTransport struct {
	ch chan Envelope

	mu         sync.Mutex
	subscribed bool
}

func NewLocalTransport(buffer int) *LocalTransport {
	return &LocalTransport{ch: make(chan Envelope, buffer)}
}

func (t *LocalTransport) Publish(ctx context.Context, env Envelope) error {
	select {
	case t.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LocalTransport) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribed {
		return nil, ErrAlreadySubscribed
	}
	t.subscribed = true
	return t.ch, nil
}

// RedisTransport fans envelopes out over a Redis pub/sub channel so a message
// posted to any host instance reaches the instance holding the session.
type RedisTransport struct {
	client  *redis.Client
	channel string
}

func NewRedisTransport(client *redis.Client, channel string) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisTransport{client: client, channel: channel}
}

func (t *RedisTransport) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish bridge message: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := t.client.Subscribe(ctx, t.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t.channel, err)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("Invalid envelope on %s: %v", t.channel, err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
