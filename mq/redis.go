package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out over a Redis pub/sub channel, so every server
// instance sharing the Redis sees every vote.
type RedisBroker struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	closed bool
	subs   []*redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisClient builds the client with the pool settings used across the
// server and checks connectivity.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisBroker takes ownership of client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, channel: TopicVoteEvents}
}

func (b *RedisBroker) Name() string { return "redis" }

// Publish sends ev as JSON on the vote events channel.
func (b *RedisBroker) Publish(ctx context.Context, ev VoteEvent) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish vote event %s: %w", ev.MessageID, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (b *RedisBroker) Subscribe(h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.subs = append(b.subs, pubsub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range pubsub.Channel() {
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				slog.Warn("dropping malformed vote event", "channel", msg.Channel, "error", err)
				continue
			}
			deliver(h, ev)
		}
	}()
	return nil
}

// Close ends every subscription and waits for its loop before closing the client.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			slog.Warn("closing redis subscription", "error", err)
		}
	}
	b.wg.Wait()
	return b.client.Close()
}
