package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type postgresStore struct {
	db *sql.DB
}

var _ Store = (*postgresStore)(nil)

func NewPostgres(db *sql.DB) Store {
	return &postgresStore{db: db}
}

// EnsureSchema creates the tables on boot when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS users (
	    id            TEXT PRIMARY KEY,
	    name          TEXT NOT NULL,
	    email         TEXT NOT NULL UNIQUE,
	    password_hash TEXT NOT NULL,
	    role          TEXT NOT NULL DEFAULT 'student',
	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS messages (
	    id          TEXT PRIMARY KEY,
	    text        TEXT NOT NULL DEFAULT '',
	    sender_id   TEXT,
	    sender_role TEXT NOT NULL,
	    is_deleted  BOOLEAN NOT NULL DEFAULT false,
	    deleted_at  TIMESTAMPTZ,
	    deleted_by  TEXT,
	    is_pinned   BOOLEAN NOT NULL DEFAULT false,
	    pinned_at   TIMESTAMPTZ,
	    pinned_by   TEXT,
	    reactions   JSONB NOT NULL DEFAULT '[]',
	    attachments JSONB NOT NULL DEFAULT '[]',
	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
	CREATE TABLE IF NOT EXISTS notifications (
	    id         TEXT PRIMARY KEY,
	    user_id    TEXT NOT NULL,
	    type       TEXT NOT NULL,
	    title      TEXT NOT NULL,
	    body       TEXT NOT NULL,
	    room_id    TEXT NOT NULL DEFAULT 'superpaac-group',
	    message_id TEXT,
	    is_read    BOOLEAN NOT NULL DEFAULT false,
	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user_read
	    ON notifications (user_id, is_read, created_at DESC);`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// ───────────────────────────── users ─────────────────────────────

func (s *postgresStore) CreateUser(ctx context.Context, u *User) error {
	const q = `INSERT INTO users (id, name, email, password_hash, role, created_at)
	                VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	return err
}

func (s *postgresStore) FindUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT id, name, email, password_hash, role, created_at
	             FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *postgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, name, email, password_hash, role, created_at
	             FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, email))
}

func (s *postgresStore) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *postgresStore) FanoutUserIDs(ctx context.Context, excludeUserID string) ([]string, error) {
	const q = `SELECT id FROM users WHERE id <> $1`
	rows, err := s.db.QueryContext(ctx, q, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ──────────────────────────── messages ───────────────────────────

const messageCols = `m.id, m.text, coalesce(m.sender_id,''), coalesce(u.name,''),
	       m.sender_role, m.is_deleted, m.deleted_at, coalesce(m.deleted_by,''),
	       m.is_pinned, m.pinned_at, coalesce(m.pinned_by,''),
	       m.reactions, m.attachments, m.created_at`

func (s *postgresStore) FindMessage(ctx context.Context, id string) (*Message, error) {
	q := `SELECT ` + messageCols + `
	        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
	       WHERE m.id = $1`
	m, err := scanMessage(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *postgresStore) SaveMessage(ctx context.Context, m *Message) error {
	reactions, err := json.Marshal(reactionsOrEmpty(m.Reactions))
	if err != nil {
		return err
	}
	attachments, err := json.Marshal(attachmentsOrEmpty(m.Attachments))
	if err != nil {
		return err
	}

	const q = `
	INSERT INTO messages (id, text, sender_id, sender_role,
	                      is_deleted, deleted_at, deleted_by,
	                      is_pinned, pinned_at, pinned_by,
	                      reactions, attachments, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (id) DO UPDATE
	       SET text        = EXCLUDED.text,
	           is_deleted  = EXCLUDED.is_deleted,
	           deleted_at  = EXCLUDED.deleted_at,
	           deleted_by  = EXCLUDED.deleted_by,
	           is_pinned   = EXCLUDED.is_pinned,
	           pinned_at   = EXCLUDED.pinned_at,
	           pinned_by   = EXCLUDED.pinned_by,
	           reactions   = EXCLUDED.reactions,
	           attachments = EXCLUDED.attachments`
	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Text, nullStr(m.SenderID), m.SenderRole,
		m.IsDeleted, nullTime(m.DeletedAt), nullStr(m.DeletedBy),
		m.IsPinned, nullTime(m.PinnedAt), nullStr(m.PinnedBy),
		reactions, attachments, m.CreatedAt)
	return err
}

func (s *postgresStore) ListMessages(ctx context.Context) ([]Message, error) {
	q := `SELECT ` + messageCols + `
	        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
	       ORDER BY m.created_at ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m                     Message
		deletedAt, pinnedAt   sql.NullTime
		reactions, attachment []byte
	)
	err := row.Scan(&m.ID, &m.Text, &m.SenderID, &m.SenderName,
		&m.SenderRole, &m.IsDeleted, &deletedAt, &m.DeletedBy,
		&m.IsPinned, &pinnedAt, &m.PinnedBy,
		&reactions, &attachment, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	if pinnedAt.Valid {
		t := pinnedAt.Time
		m.PinnedAt = &t
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachment, &m.Attachments); err != nil {
		return nil, err
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	return &m, nil
}

// ────────────────────────── notifications ────────────────────────

func (s *postgresStore) CreateNotification(ctx context.Context, n *Notification) error {
	const q = `INSERT INTO notifications
	               (id, user_id, type, title, body, room_id, message_id, is_read, created_at)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := s.db.ExecContext(ctx, q,
		n.ID, n.UserID, n.Type, n.Title, n.Body,
		n.RoomID, nullStr(n.MessageID), n.IsRead, n.CreatedAt)
	return err
}

func (s *postgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, user_id, type, title, body, room_id,
	                  coalesce(message_id,''), is_read, created_at
	             FROM notifications
	            WHERE user_id = $1
	            ORDER BY created_at DESC
	            LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body,
			&n.RoomID, &n.MessageID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *postgresStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	const q = `SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = false`
	var n int
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&n)
	return n, err
}

func (s *postgresStore) MarkNotificationRead(ctx context.Context, id, userID string) error {
	const q = `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`
	res, err := s.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	const q = `UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`
	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ───────────────────────────── helpers ───────────────────────────

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func reactionsOrEmpty(r []Reaction) []Reaction {
	if r == nil {
		return []Reaction{}
	}
	return r
}

func attachmentsOrEmpty(a []Attachment) []Attachment {
	if a == nil {
		return []Attachment{}
	}
	return a
}
