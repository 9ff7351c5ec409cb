package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// MemoryQueue is an in-process queue for single-binary deployments and tests.
// Messages do not survive a restart; the stale build sweeper re-enqueues them.
type MemoryQueue struct {
	ch           chan string
	blockTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a queue holding up to capacity pending messages.
func NewMemoryQueue(capacity int, blockTimeout time.Duration) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &MemoryQueue{ch: make(chan string, capacity), blockTimeout: blockTimeout}
}

// Enqueue blocks while the queue is full or until ctx is done.
func (q *MemoryQueue) Enqueue(ctx context.Context, build *models.Build) error {
	payload, err := Encode(build)
	if err != nil {
		return err
	}
	return q.push(ctx, payload)
}

func (q *MemoryQueue) push(ctx context.Context, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to the block timeout for a message.
func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(q.blockTimeout)
	defer timer.Stop()

	select {
	case payload, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return Decode(payload)
	case <-timer.C:
		return nil, ErrNoMessage
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack is a no-op; a received message is already gone from the channel.
func (q *MemoryQueue) Ack(context.Context, *Delivery) error { return nil }

// Nack puts the message back at the tail.
func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery) error {
	return q.push(ctx, d.payload)
}

// Len returns the number of pending messages.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Close stops accepting messages. Pending messages can still be received.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
