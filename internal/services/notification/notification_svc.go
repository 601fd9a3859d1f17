package notification

import (
	"context"
	"time"

	"groupchatgo/internal/metrics"
	"groupchatgo/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster delivers an event to every connection joined to a channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, payload any) error
}

// Template is the per-recipient blueprint of a fan-out.
type Template struct {
	Type      string
	Title     string
	Body      string
	RoomID    string
	MessageID string
}

type INotificationService interface {
	// Fanout persists one notification per recipient and pushes
	// "notification:new" on each recipient's private channel. Per-recipient
	// failures are logged and swallowed; the triggering mutation never
	// observes them.
	Fanout(ctx context.Context, excludingUserID string, tmpl Template) []store.Notification
	List(ctx context.Context, userID string, limit int) ([]store.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type notificationService struct {
	store store.Store
	bc    Broadcaster
}

var _ INotificationService = (*notificationService)(nil)

func NewNotificationService(st store.Store, bc Broadcaster) INotificationService {
	return &notificationService{store: st, bc: bc}
}

func (svc *notificationService) Fanout(ctx context.Context, excludingUserID string, tmpl Template) []store.Notification {
	ids, err := svc.store.FanoutUserIDs(ctx, excludingUserID)
	if err != nil {
		zap.L().Warn("fanout.recipients", zap.Error(err))
		return nil
	}

	created := make([]store.Notification, 0, len(ids))
	for _, uid := range ids {
		n := store.Notification{
			ID:        uuid.NewString(),
			UserID:    uid,
			Type:      tmpl.Type,
			Title:     tmpl.Title,
			Body:      tmpl.Body,
			RoomID:    tmpl.RoomID,
			MessageID: tmpl.MessageID,
			CreatedAt: time.Now().UTC(),
		}
		if err := svc.store.CreateNotification(ctx, &n); err != nil {
			zap.L().Warn("fanout.create",
				zap.String("user_id", uid), zap.Error(err))
			continue
		}
		metrics.NotificationsFanned.Inc()
		created = append(created, n)

		// Live push is best-effort: nobody subscribed to the user channel
		// means the durable record is all the recipient gets for now.
		if err := svc.bc.Broadcast(ctx, "user:"+uid, "notification:new", n); err != nil {
			zap.L().Warn("fanout.push",
				zap.String("user_id", uid), zap.Error(err))
		}
	}
	return created
}

func (svc *notificationService) List(ctx context.Context, userID string, limit int) ([]store.Notification, int, error) {
	list, err := svc.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := svc.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

func (svc *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.store.UnreadCount(ctx, userID)
}

func (svc *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	return svc.store.MarkNotificationRead(ctx, id, userID)
}

func (svc *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return svc.store.MarkAllNotificationsRead(ctx, userID)
}
