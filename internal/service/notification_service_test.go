package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/notify"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.Notification) error {
	return errors.New("redis down")
}

func (failingQueue) Dequeue(context.Context, time.Duration) (*domain.Notification, error) {
	return nil, notify.ErrEmpty
}

func TestEnqueueAppliesDefaultProvider(t *testing.T) {
	q := notify.NewMemoryQueue(4)
	svc := newTestNotificationService(q, &recordingSender{})

	require.NoError(t, svc.Enqueue(context.Background(),
		newNotification(domain.NotificationWelcome, "a@example.com", nil),
		domain.Notification{Kind: domain.NotificationBulk, To: "b@example.com", Provider: "gmail"},
	))

	first, err := q.Dequeue(context.Background(), time.Millisecond)
	require.NoError(t, err)
	second, err := q.Dequeue(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "outlook", first.Provider)
	assert.Equal(t, "gmail", second.Provider)
}

func TestEnqueueReportsEveryFailure(t *testing.T) {
	svc := newTestNotificationService(failingQueue{}, &recordingSender{})
	err := svc.Enqueue(context.Background(),
		domain.Notification{Kind: domain.NotificationWelcome, To: "a@example.com"},
		domain.Notification{Kind: domain.NotificationWelcome, To: "b@example.com"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a@example.com")
	assert.Contains(t, err.Error(), "b@example.com")

	assert.NotPanics(t, func() {
		svc.EnqueueOrLog(context.Background(), domain.Notification{Kind: domain.NotificationWelcome, To: "c@example.com"})
	})
}

func TestDeliverRendersAndSends(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestNotificationService(notify.NewMemoryQueue(1), sender)

	err := svc.Deliver(context.Background(), domain.Notification{
		Kind: domain.NotificationCommitteeAllocated,
		To:   "asha@example.com",
		Data: map[string]string{"name": "Asha Rao", "committee": "UNSC", "portfolio": "France"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "outlook", sender.sent[0].Provider)
	assert.Contains(t, sender.sent[0].Text, "UNSC")
	assert.Contains(t, sender.sent[0].Text, "France")
}

func TestQueuedCredentialIsSealedUntilDelivery(t *testing.T) {
	sealer, err := notify.NewSealer("payload-secret")
	require.NoError(t, err)
	q := notify.NewMemoryQueue(2)
	sender := &recordingSender{}
	svc := NewNotificationService(config.NotificationConfig{SenderName: "Kumaraguru MUN 2025", DefaultProvider: "outlook"},
		NotificationDependencies{Queue: q, Sender: sender, Sealer: sealer})

	require.NoError(t, svc.Enqueue(context.Background(), newNotification(domain.NotificationCredentialDisclosure, "asha@example.com",
		map[string]string{"name": "Asha", "externalId": "KMUN25001", "email": "asha@example.com", "password": "Iam9876543210!@#"})))

	queued, err := q.Dequeue(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.NotContains(t, queued.Data, "password")
	assert.NotEmpty(t, queued.Sealed["password"])

	require.NoError(t, svc.Deliver(context.Background(), *queued))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Iam9876543210!@#")

	unsealing := newTestNotificationService(q, sender)
	assert.ErrorIs(t, unsealing.Deliver(context.Background(), *queued), notify.ErrUnsealable)
}
