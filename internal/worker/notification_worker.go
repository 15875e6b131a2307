package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/notify"
	"github.com/kmun/registration-service/internal/observability"
)

// Delivery results recorded in metrics.
const (
	resultSent    = "sent"
	resultRetried = "retried"
	resultDropped = "dropped"
)

const defaultRetryBase = 30 * time.Second

// Deliverer sends a single notification.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// NotificationWorker drains the notification queue.
type NotificationWorker struct {
	queue       notify.Queue
	deliverer   Deliverer
	limiter     *rate.Limiter
	workers     int
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	pollTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NotificationWorkerDependencies bundles collaborators for the worker.
type NotificationWorkerDependencies struct {
	Queue     notify.Queue
	Deliverer Deliverer
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewNotificationWorker builds a worker from notification settings.
func NewNotificationWorker(cfg config.NotificationConfig, deps NotificationWorkerDependencies) *NotificationWorker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	retryMax := cfg.RetryMaxDelay
	if retryMax < retryBase {
		retryMax = retryBase
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:       deps.Queue,
		deliverer:   deps.Deliverer,
		limiter:     rate.NewLimiter(limit, workers),
		workers:     workers,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		retryMax:    retryMax,
		pollTimeout: 2 * time.Second,
		now:         time.Now,
		logger:      logger,
		metrics:     deps.Metrics,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (w *NotificationWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		id := i
		g.Go(func() error {
			return w.consume(ctx, id)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *NotificationWorker) consume(ctx context.Context, id int) error {
	logger := w.logger.With(zap.Int("consumer", id))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if errors.Is(err, notify.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("dequeue notification failed", zap.Error(err))
			if !sleep(ctx, w.pollTimeout) {
				return ctx.Err()
			}
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			// Put it back so a restart picks it up.
			w.requeue(context.WithoutCancel(ctx), logger, *n)
			return ctx.Err()
		}
		w.process(ctx, logger, *n)
	}
}

// ProcessOne delivers n once and retries or drops it on failure.
func (w *NotificationWorker) ProcessOne(ctx context.Context, n domain.Notification) {
	w.process(ctx, w.logger, n)
}

func (w *NotificationWorker) process(ctx context.Context, logger *zap.Logger, n domain.Notification) {
	err := w.deliverer.Deliver(ctx, n)
	if err == nil {
		w.metrics.RecordDelivery(string(n.Kind), resultSent)
		logger.Debug("notification sent", zap.String("id", n.ID), zap.String("kind", string(n.Kind)))
		return
	}

	n.Attempts++
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("to", n.To),
		zap.Int("attempts", n.Attempts),
		zap.Error(err),
	}
	if n.Attempts >= w.maxAttempts {
		w.metrics.RecordDelivery(string(n.Kind), resultDropped)
		logger.Error("notification dropped after retries", fields...)
		return
	}
	n.NotBefore = w.now().Add(w.backoff(n.Attempts))
	w.metrics.RecordDelivery(string(n.Kind), resultRetried)
	logger.Warn("notification delivery failed; retry scheduled", append(fields, zap.Time("not_before", n.NotBefore))...)
	w.requeue(ctx, logger, n)
}

// backoff doubles the delay with every failed attempt, up to retryMax.
func (w *NotificationWorker) backoff(attempts int) time.Duration {
	d := w.retryBase
	for i := 1; i < attempts && d < w.retryMax; i++ {
		d *= 2
	}
	if d > w.retryMax {
		d = w.retryMax
	}
	return d
}

func (w *NotificationWorker) requeue(ctx context.Context, logger *zap.Logger, n domain.Notification) {
	if err := w.queue.Enqueue(ctx, n); err != nil {
		logger.Error("failed to requeue notification", zap.String("id", n.ID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
