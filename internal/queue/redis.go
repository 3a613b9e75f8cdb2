package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisQueue implements Redis Streams + consumer groups with a delayed ZSET mover.
type RedisQueue struct {
	client *redis.Client
	Stream string
	Group  string
	// CancelKey is a set of cancelled job IDs.
	CancelKey  string
	DelayedKey string
	cancelTTL  time.Duration

	pollInterval time.Duration
	stop         chan struct{}
	done         chan struct{}
}

// RedisOptions configures NewRedisQueue.
type RedisOptions struct {
	URL          string
	Stream       string
	Group        string
	PollInterval time.Duration
	// CancelTTL bounds how long cancellation marks are kept.
	CancelTTL time.Duration
}

// NewRedisQueue connects to Redis, ensures stream & group, and starts delayed mover.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	q := &RedisQueue{
		client:       c,
		Stream:       opts.Stream,
		Group:        opts.Group,
		CancelKey:    opts.Stream + ":cancelled",
		DelayedKey:   opts.Stream + ":delayed",
		cancelTTL:    opts.CancelTTL,
		pollInterval: opts.PollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	// MKSTREAM creates the stream if missing
	if err := c.XGroupCreateMkStream(ctx, q.Stream, q.Group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		c.Close()
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	go q.mover()
	return q, nil
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	// go-redis returns the raw Redis error string
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error {
	close(q.stop)
	<-q.done
	return q.client.Close()
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a task to the stream as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"data": payload},
	}).Err()
}

// EnqueueDelayed schedules a task for later execution via ZSET.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, t Task, executeAt time.Time) error {
	payload, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.DelayedKey, redis.Z{Score: float64(executeAt.Unix()), Member: payload}).Err()
}

// Dequeue reads one message from the consumer group. The caller acks it once
// the job reached a terminal state.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (Message, bool, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return Message{}, false, nil
	}
	msg := res[0].Messages[0]
	var data []byte
	switch v := msg.Values["data"].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	}
	t, err := decodeTask(data)
	if err != nil {
		// a poison message would be redelivered forever
		_ = q.Ack(ctx, msg.ID)
		return Message{}, false, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return Message{ID: msg.ID, Task: t}, true, nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// Cancel marks a job as cancelled. Workers check this before processing.
func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, q.CancelKey, jobID)
	if q.cancelTTL > 0 {
		pipe.Expire(ctx, q.CancelKey, q.cancelTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IsCancelled returns true if job is cancelled.
func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return q.client.SIsMember(ctx, q.CancelKey, jobID).Result()
}

// mover periodically moves due delayed tasks from ZSET into the stream.
func (q *RedisQueue) mover() {
	defer close(q.done)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if err := q.moveOnce(); err != nil {
				log.Warn().Err(err).Str("stream", q.Stream).Msg("delayed task mover failed")
			}
		}
	}
}

func (q *RedisQueue) moveOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	now := time.Now().Unix()
	vals, err := q.client.ZRangeByScore(ctx, q.DelayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now), Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(vals) == 0 {
		return err
	}
	pipe := q.client.TxPipeline()
	for _, s := range vals {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: map[string]any{"data": s}})
		pipe.ZRem(ctx, q.DelayedKey, s)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Depth returns the stream backlog not yet delivered plus delayed tasks.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	groups := pipe.XInfoGroups(ctx, q.Stream)
	zcard := pipe.ZCard(ctx, q.DelayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	var lag int64
	for _, g := range groups.Val() {
		if g.Name == q.Group {
			lag = g.Lag + g.Pending
		}
	}
	return lag + zcard.Val(), nil
}
