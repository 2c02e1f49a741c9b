package scan

import (
	"context"

	"manifestgate/pkg/sentinel"
)

// Queue hands ticket IDs from the gateway to the orchestrator workers.
type Queue interface {
	// Enqueue adds a ticket. Returns sentinel.ErrQueueFull when the queue is
	// at capacity; the gateway surfaces that as backpressure.
	Enqueue(ctx context.Context, ticketID string) error
	// Dequeue blocks until a ticket or context cancellation.
	Dequeue(ctx context.Context) (string, error)
}

// MemoryQueue is a bounded in-process queue for single-node deployments.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{ch: make(chan string, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ticketID string) error {
	select {
	case q.ch <- ticketID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return sentinel.ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case ticketID := <-q.ch:
		return ticketID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
