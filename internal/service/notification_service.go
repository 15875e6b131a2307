package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/notify"
	"github.com/kmun/registration-service/internal/observability"
)

// NotificationService queues notifications produced by other services and
// delivers them on behalf of the worker.
type NotificationService struct {
	queue           notify.Queue
	renderer        *notify.Renderer
	sender          notify.Sender
	sealer          *notify.Sealer
	metrics         *observability.Metrics
	logger          *zap.Logger
	defaultProvider string
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Queue    notify.Queue
	Renderer *notify.Renderer
	Sender   notify.Sender
	// Sealer encrypts credentials before they reach the queue. Without one
	// notifications are queued as they are.
	Sealer  *notify.Sealer
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.NotificationConfig, deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = notify.NewRenderer(cfg.SenderName)
	}
	return &NotificationService{
		queue:           deps.Queue,
		renderer:        renderer,
		sender:          deps.Sender,
		sealer:          deps.Sealer,
		metrics:         deps.Metrics,
		logger:          logger,
		defaultProvider: cfg.DefaultProvider,
	}
}

// Enqueue hands notifications to the queue. Every notification is attempted;
// the returned error joins the individual failures.
func (n *NotificationService) Enqueue(ctx context.Context, notes ...domain.Notification) error {
	var errs []error
	for _, note := range notes {
		if note.Provider == "" {
			note.Provider = n.defaultProvider
		}
		if n.sealer != nil {
			sealed, err := n.sealer.Seal(note)
			if err != nil {
				errs = append(errs, fmt.Errorf("seal %s for %s: %w", note.Kind, note.To, err))
				continue
			}
			note = sealed
		}
		if err := n.queue.Enqueue(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s for %s: %w", note.Kind, note.To, err))
			continue
		}
		n.metrics.RecordNotificationQueued(string(note.Kind))
	}
	return errors.Join(errs...)
}

// EnqueueOrLog enqueues and logs failures instead of returning them. Used
// after a write has committed, where a queue outage must not fail the request.
func (n *NotificationService) EnqueueOrLog(ctx context.Context, notes ...domain.Notification) {
	if err := n.Enqueue(ctx, notes...); err != nil {
		n.logger.Error("failed to enqueue notifications", zap.Int("count", len(notes)), zap.Error(err))
	}
}

// Deliver renders and sends a single notification, opening sealed fields first.
func (n *NotificationService) Deliver(ctx context.Context, note domain.Notification) error {
	if note.Provider == "" {
		note.Provider = n.defaultProvider
	}
	if len(note.Sealed) > 0 {
		if n.sealer == nil {
			return notify.ErrUnsealable
		}
		opened, err := n.sealer.Open(note)
		if err != nil {
			return err
		}
		note = opened
	}
	msg, err := n.renderer.Render(note)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}
