package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryBus is an in-process topic bus used by tests and single-binary
// development runs. Queues hold messages until a subscriber drains them.
type MemoryBus struct {
	mu       sync.RWMutex
	queues   map[string]*memoryQueue
	producer string
	workers  int
	logger   *zap.Logger
}

type memoryQueue struct {
	keys map[string]bool
	ch   chan Envelope
}

const memoryQueueSize = 1024

func NewMemoryBus(producer string, workers int, logger *zap.Logger) *MemoryBus {
	if workers <= 0 {
		workers = 1
	}
	return &MemoryBus{
		queues:   map[string]*memoryQueue{},
		producer: producer,
		workers:  workers,
		logger:   logger,
	}
}

// Bind declares queue and binds it to keys. Messages published before a
// queue is bound are dropped, as with an undeclared broker queue.
func (b *MemoryBus) Bind(queue string, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		q = &memoryQueue{keys: map[string]bool{}, ch: make(chan Envelope, memoryQueueSize)}
		b.queues[queue] = q
	}
	for _, k := range keys {
		q.keys[k] = true
	}
}

func (b *MemoryBus) Publish(ctx context.Context, routingKey string, payload any) error {
	env, err := NewEnvelope(routingKey, b.producer, payload)
	if err != nil {
		return err
	}
	return b.PublishEnvelope(ctx, env)
}

// PublishEnvelope routes an already built envelope. Publishing the same
// envelope twice simulates broker redelivery.
func (b *MemoryBus) PublishEnvelope(ctx context.Context, env Envelope) error {
	type target struct {
		name string
		ch   chan Envelope
	}
	b.mu.RLock()
	var targets []target
	for name, q := range b.queues {
		if q.keys[env.Type] {
			targets = append(targets, target{name, q.ch})
		}
	}
	b.mu.RUnlock()

	// Sends happen outside the lock so a full queue never blocks Bind.
	for _, t := range targets {
		select {
		case t.ch <- env:
		case <-ctx.Done():
			return fmt.Errorf("publish %s to %s: %w", env.Type, t.name, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, queue string, router *Router) error {
	b.Bind(queue, router.RoutingKeys()...)

	b.mu.RLock()
	q := b.queues[queue]
	b.mu.RUnlock()

	b.logger.Info("Memory bus consumer started", zap.String("queue", queue), zap.Strings("routing_keys", router.RoutingKeys()))

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env := <-q.ch:
					_ = router.Deliver(context.Background(), env)
				}
			}
		}()
	}

	wg.Wait()
	return nil
}

func (b *MemoryBus) Close() error { return nil }
