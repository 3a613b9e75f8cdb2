// Package queue carries render tasks from the API to the workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Task asks a worker to render the pages of one job.
type Task struct {
	JobID   string `json:"job_id"`
	Attempt int    `json:"attempt"`
}

// Message is a dequeued task plus the ID used to acknowledge it.
type Message struct {
	ID   string
	Task Task
}

// Queue is implemented by RedisQueue and MemoryQueue.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// EnqueueDelayed makes t visible to workers at executeAt.
	EnqueueDelayed(ctx context.Context, t Task, executeAt time.Time) error
	// Dequeue blocks up to timeout. ok is false when nothing arrived.
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (msg Message, ok bool, err error)
	Ack(ctx context.Context, msgID string) error
	Cancel(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	// Depth is the number of tasks waiting, delayed ones included.
	Depth(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func encodeTask(t Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	return string(b), nil
}

func decodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return t, nil
}
