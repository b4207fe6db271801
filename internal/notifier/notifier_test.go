package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rishik-v/pulseguard/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory fakes for the three repositories the notifier writes through.

type fakeAlertRepo struct {
	mu       sync.Mutex
	created  []*models.Alert
	resolved []string
	fail     bool
}

func (r *fakeAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("store down")
	}
	r.created = append(r.created, alert)
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, alertID string) (*models.Alert, error) {
	return nil, nil
}

func (r *fakeAlertRepo) MarkResolved(ctx context.Context, alertID, resolvedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, alertID)
	return nil
}

func (r *fakeAlertRepo) ListByRecipient(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	return nil, nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *fakeNotificationRepo) CreateBatch(ctx context.Context, alertID string, recipients []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, recipients)
	return nil
}

func (r *fakeNotificationRepo) ListPending(ctx context.Context, recipientID string) ([]models.Notification, error) {
	return nil, nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, id int64, recipientID string) (bool, error) {
	return false, nil
}

type fakeChatRepo struct {
	mu      sync.Mutex
	created []*models.ChatMessage
}

func (r *fakeChatRepo) Create(ctx context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, msg)
	return nil
}

func (r *fakeChatRepo) ListByAlert(ctx context.Context, alertID string, before int64, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}

func TestNotifier_AlertCreated_PersistsAlertAndOfflineBatch(t *testing.T) {
	req := require.New(t)
	alerts := &fakeAlertRepo{}
	notifications := &fakeNotificationRepo{}
	n := New(alerts, notifications, &fakeChatRepo{}, zap.NewNop())

	alert := &models.Alert{ID: "alert_1_" + uuid.NewString(), Status: models.AlertStatusActive, CreatedAt: time.Now()}
	n.AlertCreated(alert, []string{"bob", "carol"})
	n.Wait()

	req.Len(alerts.created, 1)
	req.Same(alert, alerts.created[0])
	req.Equal([][]string{{"bob", "carol"}}, notifications.batches)
}

func TestNotifier_AlertCreated_SkipsBatchWhenAlertWriteFails(t *testing.T) {
	req := require.New(t)
	alerts := &fakeAlertRepo{fail: true}
	notifications := &fakeNotificationRepo{}
	n := New(alerts, notifications, &fakeChatRepo{}, zap.NewNop())

	n.AlertCreated(&models.Alert{ID: "a1"}, []string{"bob"})
	n.Wait()

	// No orphan notification rows pointing at an alert that never landed.
	req.Empty(notifications.batches)
}

func TestNotifier_AlertResolved(t *testing.T) {
	req := require.New(t)
	alerts := &fakeAlertRepo{}
	n := New(alerts, &fakeNotificationRepo{}, &fakeChatRepo{}, zap.NewNop())

	n.AlertResolved("a1", "admin", time.Now())
	n.Wait()

	req.Equal([]string{"a1"}, alerts.resolved)
}

func TestNotifier_ChatMessageRelayed(t *testing.T) {
	req := require.New(t)
	chats := &fakeChatRepo{}
	n := New(&fakeAlertRepo{}, &fakeNotificationRepo{}, chats, zap.NewNop())

	// Relay-minted id: persisted here.
	n.ChatMessageRelayed(&models.ChatMessage{ID: "msg_1_u1", AlertID: "a1"}, false)
	// Caller-supplied durable id: already stored upstream, skipped.
	n.ChatMessageRelayed(&models.ChatMessage{ID: "doc-42", AlertID: "a1"}, true)
	n.Wait()

	req.Len(chats.created, 1)
	req.Equal("msg_1_u1", chats.created[0].ID)
}
