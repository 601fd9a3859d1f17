package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every Find* helper when the id is unknown.
var ErrNotFound = errors.New("record not found")

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
	RoleMentor  = "mentor"
)

// Notification types mirror the persisted enum.
const (
	NotifPinnedAnnouncement = "PINNED_ANNOUNCEMENT"
	NotifMention            = "MENTION"
	NotifSystem             = "SYSTEM"
	NotifMessage            = "MESSAGE"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reaction is owned by its message; uniqueness key is (user_id, emoji).
type Reaction struct {
	Emoji     string    `json:"emoji"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Kind     string `json:"kind"`
}

// Message carries all mutable shared sub-state. Reactions and attachments
// live in JSONB columns so a soft-delete clears dependent state in the same
// row write that sets is_deleted.
type Message struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	SenderID    string       `json:"senderId,omitempty"`
	SenderName  string       `json:"senderName,omitempty"`
	SenderRole  string       `json:"senderRole"`
	IsDeleted   bool         `json:"isDeleted"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	DeletedBy   string       `json:"deletedBy,omitempty"`
	IsPinned    bool         `json:"isPinned"`
	PinnedAt    *time.Time   `json:"pinnedAt,omitempty"`
	PinnedBy    string       `json:"pinnedBy,omitempty"`
	Reactions   []Reaction   `json:"reactions"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// HasReaction reports whether user already reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"message"`
	RoomID    string    `json:"roomId"`
	MessageID string    `json:"messageId,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence boundary of the broadcast core.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	// FanoutUserIDs returns every known user id except the excluded one.
	FanoutUserIDs(ctx context.Context, excludeUserID string) ([]string, error)

	FindMessage(ctx context.Context, id string) (*Message, error)
	// SaveMessage upserts the full row, reactions and pin state included.
	SaveMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context) ([]Message, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}
