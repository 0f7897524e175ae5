package mq

import (
	"context"
	"sync"
	"testing"
	"time"

	"polls-backend/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_FanOutInOrder(t *testing.T) {
	b := NewMemoryBroker()

	var mu sync.Mutex
	var first, second []uint
	require.NoError(t, b.Subscribe(func(_ context.Context, ev VoteEvent) {
		mu.Lock()
		first = append(first, ev.ChoiceID)
		mu.Unlock()
	}))
	require.NoError(t, b.Subscribe(func(_ context.Context, ev VoteEvent) {
		mu.Lock()
		second = append(second, ev.ChoiceID)
		mu.Unlock()
	}))

	for i := uint(1); i <= 10; i++ {
		require.NoError(t, b.Publish(context.Background(), NewVoteEvent(1, i, time.Now())))
	}
	require.NoError(t, b.Close())

	want := []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestMemoryBroker_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := NewMemoryBroker()

	var got []string
	require.NoError(t, b.Subscribe(func(_ context.Context, ev VoteEvent) {
		if ev.ChoiceID == 1 {
			panic("boom")
		}
		got = append(got, ev.MessageID)
	}))

	require.NoError(t, b.Publish(context.Background(), NewVoteEvent(1, 1, time.Now())))
	ev := NewVoteEvent(1, 2, time.Now())
	require.NoError(t, b.Publish(context.Background(), ev))
	require.NoError(t, b.Close())

	assert.Equal(t, []string{ev.MessageID}, got)
}

func TestMemoryBroker_Closed(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), NewVoteEvent(1, 1, time.Now())), ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(func(context.Context, VoteEvent) {}), ErrBrokerClosed)
}

func TestMemoryBroker_FullQueueDoesNotBlock(t *testing.T) {
	b := NewMemoryBroker()
	release := make(chan struct{})
	require.NoError(t, b.Subscribe(func(context.Context, VoteEvent) { <-release }))

	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < memoryQueueSize+2 && err == nil; i++ {
			err = b.Publish(context.Background(), NewVoteEvent(1, 1, time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, b.Close())
}

func TestNewVoteEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	a := NewVoteEvent(4, 7, at)
	b := NewVoteEvent(4, 7, at)

	assert.NotEmpty(t, a.MessageID)
	assert.NotEqual(t, a.MessageID, b.MessageID)
	assert.Equal(t, time.UTC, a.Timestamp.Location())

	body, err := encodeEvent(a)
	require.NoError(t, err)
	decoded, err := decodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, a.MessageID, decoded.MessageID)
	assert.True(t, a.Timestamp.Equal(decoded.Timestamp))

	_, err = decodeEvent([]byte(`{"choice_id":1}`))
	assert.Error(t, err)
	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewBroker_FallsBackToMemory(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{MQDriver: config.MQMemory}},
		{"unreachable redis", config.Config{MQDriver: config.MQRedis, RedisAddr: "127.0.0.1:1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBroker(context.Background(), tc.cfg)
			defer b.Close()
			assert.Equal(t, "memory", b.Name())
		})
	}
}
