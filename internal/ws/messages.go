package ws

import (
	"encoding/json"

	"groupchatgo/internal/store"
)

// Envelope wraps every WS frame, both directions.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "message:react"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────── Request / Response DTOs ────────────────────────

// AuthenticateRequest is the body for "authenticate".
type AuthenticateRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// AuthenticatedBody acknowledges a successful authenticate.
type AuthenticatedBody struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ChatMessageRequest is the body for "chatMessage".
type ChatMessageRequest struct {
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

// DeleteMessageRequest is the body for "deleteMessage".
type DeleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

// ReactRequest is the body for "message:react".
type ReactRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji"`
}

// PinToggleRequest is the body for "message:pinToggle".
type PinToggleRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Pin       bool   `json:"pin"`
}

// TypingRequest is the body for "typing" and "stop_typing".
type TypingRequest struct {
	DisplayName string `json:"displayName,omitempty"`
}

// TypingBody is broadcast as "user:typing" / "user:stop_typing".
type TypingBody struct {
	UserID      string `json:"userId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

// UnreadCountBody is the point-in-time snapshot pushed after authenticate.
type UnreadCountBody struct {
	UnreadCount int `json:"unreadCount"`
}

// Empty ACK body (useful for many handlers).
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Message string `json:"message"`
}
