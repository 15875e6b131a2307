package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/notify"
)

type scriptedDeliverer struct {
	mu        sync.Mutex
	failFirst int
	calls     map[string]int
	delivered chan domain.Notification
}

func newScriptedDeliverer(failFirst int) *scriptedDeliverer {
	return &scriptedDeliverer{failFirst: failFirst, calls: map[string]int{}, delivered: make(chan domain.Notification, 16)}
}

func (d *scriptedDeliverer) Deliver(_ context.Context, n domain.Notification) error {
	d.mu.Lock()
	d.calls[n.ID]++
	calls := d.calls[n.ID]
	d.mu.Unlock()
	if calls <= d.failFirst {
		return errors.New("smtp timeout")
	}
	d.delivered <- n
	return nil
}

func (d *scriptedDeliverer) callsFor(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

func newWorker(q notify.Queue, d Deliverer, maxAttempts int) *NotificationWorker {
	w := NewNotificationWorker(config.NotificationConfig{
		Workers:        2,
		MaxAttempts:    maxAttempts,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	}, NotificationWorkerDependencies{
		Queue:     q,
		Deliverer: d,
	})
	w.pollTimeout = 5 * time.Millisecond
	return w
}

func TestWorkerRetriesUntilDelivered(t *testing.T) {
	q := notify.NewMemoryQueue(8)
	d := newScriptedDeliverer(2)
	w := newWorker(q, d, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, domain.Notification{ID: "n1", Kind: domain.NotificationWelcome}))

	select {
	case n := <-d.delivered:
		assert.Equal(t, "n1", n.ID)
		assert.Equal(t, 2, n.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 3, d.callsFor("n1"))
}

func TestWorkerDropsAfterMaxAttempts(t *testing.T) {
	q := notify.NewMemoryQueue(8)
	d := newScriptedDeliverer(10)
	w := newWorker(q, d, 2)

	w.ProcessOne(context.Background(), domain.Notification{ID: "n1", Kind: domain.NotificationBulk})
	requeued, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued.Attempts)
	assert.False(t, requeued.NotBefore.IsZero())

	w.ProcessOne(context.Background(), *requeued)
	_, err = q.Dequeue(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, notify.ErrEmpty)
	assert.Zero(t, q.Len())
	assert.Equal(t, 2, d.callsFor("n1"))
}

// outageDeliverer fails every attempt made before the outage ends and records
// when each attempt happened.
type outageDeliverer struct {
	mu        sync.Mutex
	start     time.Time
	outage    time.Duration
	attempts  []time.Duration
	delivered chan struct{}
}

func (d *outageDeliverer) Deliver(_ context.Context, _ domain.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	elapsed := time.Since(d.start)
	d.attempts = append(d.attempts, elapsed)
	if elapsed < d.outage {
		return errors.New("smtp unavailable")
	}
	close(d.delivered)
	return nil
}

func TestWorkerBacksOffAcrossOutage(t *testing.T) {
	q := notify.NewMemoryQueue(8)
	d := &outageDeliverer{start: time.Now(), outage: 500 * time.Millisecond, delivered: make(chan struct{})}
	w := NewNotificationWorker(config.NotificationConfig{
		Workers:        2,
		RatePerSecond:  5,
		MaxAttempts:    4,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	}, NotificationWorkerDependencies{Queue: q, Deliverer: d})
	w.pollTimeout = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, domain.Notification{ID: "n1", Kind: domain.NotificationCredentialDisclosure}))

	select {
	case <-d.delivered:
	case <-time.After(3 * time.Second):
		t.Fatal("notification was dropped during the outage")
	}
	cancel()
	assert.NoError(t, <-done)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.attempts, 4)
	for i := 1; i < len(d.attempts); i++ {
		gap := d.attempts[i] - d.attempts[i-1]
		assert.GreaterOrEqual(t, gap, (100*time.Millisecond)<<(i-1), "attempt %d", i+1)
	}
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	w := NewNotificationWorker(config.NotificationConfig{
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  5 * time.Second,
	}, NotificationWorkerDependencies{Queue: notify.NewMemoryQueue(1)})

	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 4*time.Second, w.backoff(3))
	assert.Equal(t, 5*time.Second, w.backoff(4))
	assert.Equal(t, 5*time.Second, w.backoff(12))
}
