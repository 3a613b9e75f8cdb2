package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var errClosed = errors.New("queue closed")

// MemoryQueue is a channel-backed Queue for single-process deployments.
// Messages are acked on delivery.
type MemoryQueue struct {
	ch        chan Task
	mu        sync.Mutex
	cancelled map[string]struct{}
	timers    map[*time.Timer]struct{}
	seq       int64
	closed    bool
}

// NewMemoryQueue creates a queue buffering up to size tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		ch:        make(chan Task, size),
		cancelled: map[string]struct{}{},
		timers:    map[*time.Timer]struct{}{},
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errClosed
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) EnqueueDelayed(_ context.Context, t Task, executeAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed
	}
	var timer *time.Timer
	timer = time.AfterFunc(time.Until(executeAt), func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()
		if !closed {
			_ = q.Enqueue(context.Background(), t)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, _ string, timeout time.Duration) (Message, bool, error) {
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case t := <-q.ch:
		q.mu.Lock()
		q.seq++
		id := strconv.FormatInt(q.seq, 10)
		q.mu.Unlock()
		return Message{ID: id, Task: t}, true, nil
	case <-wait.C:
		return Message{}, false, nil
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, string) error { return nil }

func (q *MemoryQueue) Cancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[jobID] = struct{}{}
	return nil
}

func (q *MemoryQueue) IsCancelled(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[jobID]
	return ok, nil
}

func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ch) + len(q.timers)), nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	return nil
}
