package mq

import (
	"context"
	"log/slog"
	"sync"
)

const memoryQueueSize = 256

// MemoryBroker delivers events to in-process subscribers from a single
// dispatch goroutine, so handlers observe events in publish order.
type MemoryBroker struct {
	// mu guards closed and sends on queue.
	mu     sync.RWMutex
	closed bool
	queue  chan VoteEvent
	done   chan struct{}

	hmu      sync.Mutex
	handlers []Handler
}

// NewMemoryBroker starts the dispatch loop.
func NewMemoryBroker() *MemoryBroker {
	b := &MemoryBroker{
		queue: make(chan VoteEvent, memoryQueueSize),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *MemoryBroker) Name() string { return "memory" }

// Publish enqueues ev without waiting. It returns ErrQueueFull when
// subscribers have fallen memoryQueueSize events behind.
func (b *MemoryBroker) Publish(ctx context.Context, ev VoteEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	select {
	case b.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds h to the handlers the dispatch loop calls in order.
func (b *MemoryBroker) Subscribe(h Handler) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBrokerClosed
	}

	b.hmu.Lock()
	b.handlers = append(b.handlers, h)
	b.hmu.Unlock()
	return nil
}

// Close stops accepting events, drains what is queued and waits for the
// dispatch loop to exit.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	return nil
}

func (b *MemoryBroker) dispatch() {
	defer close(b.done)
	for ev := range b.queue {
		b.hmu.Lock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.hmu.Unlock()

		for _, h := range handlers {
			deliver(h, ev)
		}
	}
}

// deliver keeps a panicking handler from killing the dispatch loop.
func deliver(h Handler, ev VoteEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("vote event handler panicked", "message_id", ev.MessageID, "panic", r)
		}
	}()
	h(context.Background(), ev)
}
