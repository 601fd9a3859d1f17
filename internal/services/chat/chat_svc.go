package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"groupchatgo/internal/metrics"
	"groupchatgo/internal/services/notification"
	"groupchatgo/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage    = errors.New("message text or attachments required")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrForbidden       = errors.New("forbidden")
)

// DeletedPlaceholder replaces the text of soft-deleted messages on fetch.
const DeletedPlaceholder = "This message was deleted"

const notificationBodyMax = 100

// Broadcaster delivers an event to every connection joined to a channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, payload any) error
}

type SoftDeletedBody struct {
	ID string `json:"id"`
}

type ReactionUpdatedBody struct {
	MessageID string           `json:"messageId"`
	Reactions []store.Reaction `json:"reactions"`
}

type PinnedUpdatedBody struct {
	MessageID string     `json:"messageId"`
	IsPinned  bool       `json:"isPinned"`
	PinnedAt  *time.Time `json:"pinnedAt,omitempty"`
	PinnedBy  string     `json:"pinnedBy,omitempty"`
}

// IChatService is the state machine for message lifecycle transitions.
type IChatService interface {
	CreateMessage(ctx context.Context, senderID, text string, attachments []store.Attachment) (*store.Message, error)
	SoftDeleteMessage(ctx context.Context, actorID, messageID string) error
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*store.Message, error)
	TogglePin(ctx context.Context, messageID, actorID string, pin bool) (*store.Message, error)
	ListMessages(ctx context.Context) ([]store.Message, error)
}

type chatService struct {
	store       store.Store
	bc          Broadcaster
	notifier    notification.INotificationService
	locks       *lockMap
	roomID      string
	deleteRoles map[string]bool
}

var _ IChatService = (*chatService)(nil)

func NewChatService(st store.Store, bc Broadcaster, notifier notification.INotificationService,
	roomID string, deleteRoles map[string]bool) IChatService {
	return &chatService{
		store:       st,
		bc:          bc,
		notifier:    notifier,
		locks:       newLockMap(),
		roomID:      roomID,
		deleteRoles: deleteRoles,
	}
}

func (svc *chatService) CreateMessage(ctx context.Context, senderID, text string,
	attachments []store.Attachment) (*store.Message, error) {

	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	sender, err := svc.store.FindUser(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	msg := &store.Message{
		ID:          uuid.NewString(),
		Text:        text,
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderRole:  sender.Role,
		Reactions:   []store.Reaction{},
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := svc.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.Inc()

	svc.broadcast(ctx, "newMessage", msg)
	return msg, nil
}

func (svc *chatService) SoftDeleteMessage(ctx context.Context, actorID, messageID string) error {
	actor, err := svc.findActor(ctx, actorID)
	if err != nil {
		return err
	}
	if !svc.deleteRoles[actor.Role] {
		return ErrForbidden
	}

	unlock := svc.locks.Lock(messageID)
	defer unlock()

	msg, err := svc.findMessage(ctx, messageID)
	if err != nil {
		return err
	}

	// Soft-delete clears the dependent sub-state in the same persisted
	// write: reactions gone, pin gone.
	now := time.Now().UTC()
	msg.IsDeleted = true
	msg.DeletedAt = &now
	msg.DeletedBy = actor.ID
	msg.Reactions = []store.Reaction{}
	msg.IsPinned = false
	msg.PinnedAt = nil
	msg.PinnedBy = ""
	if err := svc.store.SaveMessage(ctx, msg); err != nil {
		return err
	}

	// Clients rebuild the rest locally from the id alone.
	svc.broadcast(ctx, "messageSoftDeleted", SoftDeletedBody{ID: msg.ID})
	return nil
}

func (svc *chatService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*store.Message, error) {
	unlock := svc.locks.Lock(messageID)
	defer unlock()

	msg, err := svc.findMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if msg.HasReaction(userID, emoji) {
		kept := msg.Reactions[:0]
		for _, r := range msg.Reactions {
			if r.UserID == userID && r.Emoji == emoji {
				continue
			}
			kept = append(kept, r)
		}
		msg.Reactions = kept
	} else {
		msg.Reactions = append(msg.Reactions, store.Reaction{
			Emoji:     emoji,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		})
	}

	if err := svc.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Full list, not a delta: the broadcast doubles as the reconciliation
	// point for clients that raced on the same message.
	svc.broadcast(ctx, "message:reactionUpdated", ReactionUpdatedBody{
		MessageID: msg.ID,
		Reactions: msg.Reactions,
	})
	return msg, nil
}

func (svc *chatService) TogglePin(ctx context.Context, messageID, actorID string, pin bool) (*store.Message, error) {
	actor, err := svc.findActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case store.RoleTeacher, store.RoleAdmin, store.RoleMentor:
	default:
		return nil, ErrForbidden
	}

	unlock := svc.locks.Lock(messageID)
	defer unlock()

	msg, err := svc.findMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	wasPinned := msg.IsPinned
	if pin {
		now := time.Now().UTC()
		msg.IsPinned = true
		msg.PinnedAt = &now
		msg.PinnedBy = actor.ID
	} else {
		msg.IsPinned = false
		msg.PinnedAt = nil
		msg.PinnedBy = ""
	}
	if err := svc.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	svc.broadcast(ctx, "message:pinnedUpdated", PinnedUpdatedBody{
		MessageID: msg.ID,
		IsPinned:  msg.IsPinned,
		PinnedAt:  msg.PinnedAt,
		PinnedBy:  msg.PinnedBy,
	})

	// Fan-out fires only on the transition to pinned and always after the
	// room broadcast, so the notification reflects the announced state.
	if pin && !wasPinned {
		svc.notifier.Fanout(ctx, actor.ID, notification.Template{
			Type:      store.NotifPinnedAnnouncement,
			Title:     "📌 Pinned Announcement",
			Body:      roleTitle(actor.Role) + " pinned: " + truncate(msg.Text, notificationBodyMax),
			RoomID:    svc.roomID,
			MessageID: msg.ID,
		})
	}
	return msg, nil
}

// ListMessages returns the room history oldest-first; soft-deleted entries
// carry the placeholder text and no sub-state.
func (svc *chatService) ListMessages(ctx context.Context) ([]store.Message, error) {
	msgs, err := svc.store.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].IsDeleted {
			msgs[i].Text = DeletedPlaceholder
			msgs[i].Attachments = []store.Attachment{}
		}
	}
	return msgs, nil
}

// ───────────────────────────── helpers ───────────────────────────

func (svc *chatService) findActor(ctx context.Context, id string) (*store.User, error) {
	// Always the persisted role, never the one cached on the connection.
	u, err := svc.store.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (svc *chatService) findMessage(ctx context.Context, id string) (*store.Message, error) {
	m, err := svc.store.FindMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if m.IsDeleted {
		// Soft-delete is terminal; deleted messages take no further
		// mutations.
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func (svc *chatService) broadcast(ctx context.Context, event string, payload any) {
	if err := svc.bc.Broadcast(ctx, svc.roomID, event, payload); err != nil {
		zap.L().Warn("chat.broadcast", zap.String("event", event), zap.Error(err))
	}
}

func roleTitle(role string) string {
	if role == "" {
		return "Someone"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
