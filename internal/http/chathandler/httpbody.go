package chathandler

import "groupchatgo/internal/store"

type RegisterBody struct {
	Name       string `json:"name"     binding:"required"       example:"Jane Doe"`
	Email      string `json:"email"    binding:"required,email" example:"jane@example.com"`
	Password   string `json:"password" binding:"required,min=6" example:"hunter22"`
	MentorCode string `json:"mentorCode"`
	Role       string `json:"role"`
} // @name RegisterRequest

type LoginBody struct {
	Email    string `json:"email"    binding:"required,email" example:"jane@example.com"`
	Password string `json:"password" binding:"required"       example:"hunter22"`
} // @name LoginRequest

type AuthResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
} // @name AuthResponse

type CreateMessageBody struct {
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
} // @name CreateMessageRequest

type NotificationListResponse struct {
	Notifications []store.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
} // @name NotificationListResponse

type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
} // @name UnreadCountResponse

type ListNotificationsQuery struct {
	Limit int `form:"limit,default=50" binding:"gte=0,lte=200"`
} // @name ListNotificationsQuery

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
