// Package notifier is the companion durable writer for the realtime hub.
// The hub's handlers never block on the store; everything here runs on a
// short-lived goroutine with its own deadline, and a failed write is a log
// line, not a live-path error.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rishik-v/pulseguard/internal/models"
	"github.com/rishik-v/pulseguard/internal/repository"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type Notifier struct {
	alerts        repository.AlertRepository
	notifications repository.NotificationRepository
	chats         repository.ChatMessageRepository
	logger        *zap.Logger

	// wg lets Wait drain in-flight writes on shutdown so the process does
	// not exit with an alert half-persisted.
	wg sync.WaitGroup
}

func New(
	alerts repository.AlertRepository,
	notifications repository.NotificationRepository,
	chats repository.ChatMessageRepository,
	logger *zap.Logger,
) *Notifier {
	return &Notifier{
		alerts:        alerts,
		notifications: notifications,
		chats:         chats,
		logger:        logger,
	}
}

// AlertCreated persists the alert record and one pending notification per
// recipient the live layer could not reach. Offline recipients learn about
// the alert from their inbox; that is the whole point of this write.
func (n *Notifier) AlertCreated(alert *models.Alert, offline []string) {
	n.run(func(ctx context.Context) {
		if err := n.alerts.Create(ctx, alert); err != nil {
			n.logger.Error("persist alert failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			return
		}
		if err := n.notifications.CreateBatch(ctx, alert.ID, offline, alert.CreatedAt); err != nil {
			n.logger.Error("persist offline notifications failed",
				zap.String("alert_id", alert.ID),
				zap.Int("recipients", len(offline)),
				zap.Error(err),
			)
		}
	})
}

func (n *Notifier) AlertResolved(alertID, resolvedBy string, at time.Time) {
	n.run(func(ctx context.Context) {
		if err := n.alerts.MarkResolved(ctx, alertID, resolvedBy, at); err != nil {
			n.logger.Error("persist resolution failed",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
		}
	})
}

// ChatMessageRelayed persists messages the relay minted an id for. When the
// caller supplied a durable id the record already exists upstream — writing
// it again here would race the owner of that id.
func (n *Notifier) ChatMessageRelayed(msg *models.ChatMessage, callerPersisted bool) {
	if callerPersisted {
		return
	}
	n.run(func(ctx context.Context) {
		if err := n.chats.Create(ctx, msg); err != nil {
			n.logger.Error("persist chat message failed",
				zap.String("message_id", msg.ID),
				zap.String("alert_id", msg.AlertID),
				zap.Error(err),
			)
		}
	})
}

// Wait blocks until all in-flight writes finish. Called on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) run(fn func(ctx context.Context)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		fn(ctx)
	}()
}
