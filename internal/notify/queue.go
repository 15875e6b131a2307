// Package notify queues and delivers outbound email produced by the services.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmun/registration-service/internal/domain"
)

// Queue errors.
var (
	ErrEmpty     = errors.New("notification queue empty")
	ErrQueueFull = errors.New("notification queue full")
)

// promoteBatch bounds how many delayed notifications one Dequeue moves back.
const promoteBatch = 100

// Queue hands pending notifications from producers to the delivery worker.
// A notification whose NotBefore lies in the future is held back until then.
type Queue interface {
	Enqueue(ctx context.Context, n domain.Notification) error
	// Dequeue blocks up to timeout and returns ErrEmpty if nothing is due.
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.Notification, error)
}

// RedisQueue is a FIFO backed by a Redis list. Delayed retries wait in a
// sorted set scored by their due time and are moved onto the list once due.
type RedisQueue struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// promoteDue atomically moves due members of the delayed set onto the list.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, v in ipairs(due) do
	redis.call('ZREM', KEYS[2], v)
	redis.call('LPUSH', KEYS[1], v)
end
return #due
`)

// NewRedisQueue constructs a queue on key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, now: time.Now}
}

func (q *RedisQueue) delayedKey() string {
	return q.key + ":delayed"
}

// Enqueue pushes n onto the head of the list, or parks it in the delayed set.
func (q *RedisQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if !n.Due(q.now()) {
		return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
			Score:  float64(n.NotBefore.UnixMilli()),
			Member: payload,
		}).Err()
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Dequeue promotes due retries, then pops from the tail of the list.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Notification, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	if err := promoteDue.Run(ctx, q.client, []string{q.key, q.delayedKey()}, now, promoteBatch).Err(); err != nil {
		return nil, fmt.Errorf("promote delayed notifications: %w", err)
	}

	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	var n domain.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// Len reports the number of waiting notifications, delayed ones included.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.key)
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return ready.Val() + delayed.Val(), nil
}

// MemoryQueue is a bounded in-process queue for single-instance deployments
// and tests.
type MemoryQueue struct {
	ch       chan domain.Notification
	capacity int

	mu      sync.Mutex
	delayed []domain.Notification
}

// NewMemoryQueue creates a queue holding up to capacity notifications.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan domain.Notification, capacity), capacity: capacity}
}

// Enqueue adds n without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ch)+len(q.delayed) >= q.capacity {
		return ErrQueueFull
	}
	if !n.Due(time.Now()) {
		q.delayed = append(q.delayed, n)
		return nil
	}
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits for the next due notification.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Notification, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if next, ok := q.promote(time.Now()); ok {
			if until := time.Until(next); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case n := <-q.ch:
			timer.Stop()
			return &n, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if !time.Now().Before(deadline) {
			return nil, ErrEmpty
		}
	}
}

// promote moves due notifications onto the channel and reports when the
// earliest remaining one becomes due.
func (q *MemoryQueue) promote(now time.Time) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next time.Time
	pending := q.delayed[:0]
	for _, n := range q.delayed {
		if n.Due(now) {
			select {
			case q.ch <- n:
				continue
			default:
			}
		}
		pending = append(pending, n)
		if next.IsZero() || n.NotBefore.Before(next) {
			next = n.NotBefore
		}
	}
	q.delayed = pending
	return next, !next.IsZero()
}

// Len reports the number of waiting notifications, delayed ones included.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.delayed)
}
