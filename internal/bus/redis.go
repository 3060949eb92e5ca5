package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus wraps go-redis v9 to implement Bus against a real Redis
// instance (spec §6: "Concrete Redis client wire details beyond PUB/SUB
// semantics" are out of scope; we rely on go-redis's own semantics here).
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to addr and verifies connectivity with a PING.
func NewRedisBus(ctx context.Context, addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: redis ping failed (%s): %w", addr, err)
	}
	slog.Info("bus connected", "addr", addr)
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler func([]byte)) error {
	sub := b.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("bus: subscribe to %s: %w", topic, err)
	}
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
