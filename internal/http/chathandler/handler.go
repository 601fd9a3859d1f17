package chathandler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"groupchatgo/internal/auth"
	"groupchatgo/internal/services/chat"
	"groupchatgo/internal/services/notification"
	"groupchatgo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	chatSvc    chat.IChatService
	notifSvc   notification.INotificationService
	store      store.Store
	jwtSecret  string
	tokenTTL   time.Duration
	mentorCode string
}

func New(chatSvc chat.IChatService, notifSvc notification.INotificationService,
	st store.Store, jwtSecret string, tokenTTL time.Duration, mentorCode string) *Handler {
	return &Handler{
		chatSvc:    chatSvc,
		notifSvc:   notifSvc,
		store:      st,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		mentorCode: mentorCode,
	}
}

func (h *Handler) Register(r *gin.Engine, authMW gin.HandlerFunc) {
	r.POST("/api/auth/register", h.register)
	r.POST("/api/auth/login", h.login)

	api := r.Group("/api", authMW)
	api.GET("/auth/me", h.me)
	api.GET("/messages", h.listMessages)
	api.POST("/messages", h.createMessage)
	api.DELETE("/messages/:id", h.deleteMessage)
	api.GET("/notifications", h.listNotifications)
	api.GET("/notifications/unread-count", h.unreadCount)
	api.POST("/notifications/:id/read", h.markRead)
	api.POST("/notifications/read-all", h.markAllRead)
}

// ──────────────────────────────── auth ───────────────────────────────

// @Summary		Register a new user
// @Description	Creates an account. A matching mentor code promotes the account to teacher.
// @Tags			Auth
// @Param			body	body	RegisterBody	true	"Registration payload"
// @Success		201	{object}	AuthResponse
// @Failure		400	{object}	ErrorResponse
// @Router			/api/auth/register [post]
func (h *Handler) register(ginCtx *gin.Context) {
	var body RegisterBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, err := h.store.FindUserByEmail(ginCtx.Request.Context(), email); err == nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "user with this email already exists"})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.serverError(ginCtx, err)
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}

	// Default role is student; the mentor code promotes to teacher, and
	// admin is granted only when trusted tooling sends it explicitly.
	role := store.RoleStudent
	if body.MentorCode != "" && h.mentorCode != "" && body.MentorCode == h.mentorCode {
		role = store.RoleTeacher
	}
	if body.Role == store.RoleAdmin {
		role = store.RoleAdmin
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Name:         body.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(ginCtx.Request.Context(), user); err != nil {
		h.serverError(ginCtx, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, &AuthResponse{Token: token, User: user})
}

// @Summary		Log in
// @Tags			Auth
// @Param			body	body	LoginBody	true	"Credentials"
// @Success		200	{object}	AuthResponse
// @Failure		400	{object}	ErrorResponse
// @Router			/api/auth/login [post]
func (h *Handler) login(ginCtx *gin.Context) {
	var body LoginBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.store.FindUserByEmail(ginCtx.Request.Context(),
		strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil || !auth.VerifyPassword(user.PasswordHash, body.Password) {
		// Same message for unknown email and bad password.
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, &AuthResponse{Token: token, User: user})
}

// @Summary		Current user
// @Tags			Auth
// @Success		200	{object}	store.User
// @Router			/api/auth/me [get]
func (h *Handler) me(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, gin.H{"user": auth.CurrentUser(ginCtx)})
}

// ────────────────────────────── messages ─────────────────────────────

// @Summary		Room history
// @Description	All messages oldest-first; soft-deleted entries carry placeholder text.
// @Tags			Messages
// @Success		200	{array}		store.Message
// @Failure		500	{object}	ErrorResponse
// @Router			/api/messages [get]
func (h *Handler) listMessages(ginCtx *gin.Context) {
	msgs, err := h.chatSvc.ListMessages(ginCtx.Request.Context())
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"data": msgs})
}

// @Summary		Send a message
// @Tags			Messages
// @Param			body	body	CreateMessageBody	true	"Message payload"
// @Success		201	{object}	store.Message
// @Failure		400	{object}	ErrorResponse
// @Router			/api/messages [post]
func (h *Handler) createMessage(ginCtx *gin.Context) {
	var body CreateMessageBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	user := auth.CurrentUser(ginCtx)
	msg, err := h.chatSvc.CreateMessage(ginCtx.Request.Context(), user.ID, body.Text, body.Attachments)
	if err != nil {
		h.chatError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, gin.H{"data": msg})
}

// @Summary		Soft-delete a message
// @Description	Marks the message deleted and clears reactions and pin state.
// @Tags			Messages
// @Param			id	path	string	true	"Message ID"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/api/messages/{id} [delete]
func (h *Handler) deleteMessage(ginCtx *gin.Context) {
	user := auth.CurrentUser(ginCtx)
	err := h.chatSvc.SoftDeleteMessage(ginCtx.Request.Context(), user.ID, ginCtx.Param("id"))
	if err != nil {
		h.chatError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

// ──────────────────────────── notifications ──────────────────────────

// @Summary		List notifications
// @Tags			Notifications
// @Param			limit	query		int	false	"Max results"	default(50)
// @Success		200	{object}	NotificationListResponse
// @Router			/api/notifications [get]
func (h *Handler) listNotifications(ginCtx *gin.Context) {
	var q ListNotificationsQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	user := auth.CurrentUser(ginCtx)
	list, unread, err := h.notifSvc.List(ginCtx.Request.Context(), user.ID, q.Limit)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, &NotificationListResponse{Notifications: list, UnreadCount: unread})
}

// @Summary		Unread notification count
// @Tags			Notifications
// @Success		200	{object}	UnreadCountResponse
// @Router			/api/notifications/unread-count [get]
func (h *Handler) unreadCount(ginCtx *gin.Context) {
	user := auth.CurrentUser(ginCtx)
	n, err := h.notifSvc.UnreadCount(ginCtx.Request.Context(), user.ID)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, &UnreadCountResponse{UnreadCount: n})
}

// @Summary		Mark one notification read
// @Tags			Notifications
// @Param			id	path	string	true	"Notification ID"
// @Success		200
// @Failure		404	{object}	ErrorResponse
// @Router			/api/notifications/{id}/read [post]
func (h *Handler) markRead(ginCtx *gin.Context) {
	user := auth.CurrentUser(ginCtx)
	err := h.notifSvc.MarkRead(ginCtx.Request.Context(), ginCtx.Param("id"), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: "notification not found"})
		return
	}
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary		Mark all notifications read
// @Tags			Notifications
// @Success		200
// @Router			/api/notifications/read-all [post]
func (h *Handler) markAllRead(ginCtx *gin.Context) {
	user := auth.CurrentUser(ginCtx)
	n, err := h.notifSvc.MarkAllRead(ginCtx.Request.Context(), user.ID)
	if err != nil {
		h.serverError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"modifiedCount": n})
}

// ───────────────────────────── error mapping ─────────────────────────

func (h *Handler) chatError(ginCtx *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrForbidden):
		// Generic denial: never hint which role would have succeeded.
		ginCtx.JSON(http.StatusForbidden, &ErrorResponse{Error: "forbidden"})
	case errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, chat.ErrUserNotFound):
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
	default:
		h.serverError(ginCtx, err)
	}
}

func (h *Handler) serverError(ginCtx *gin.Context, err error) {
	zap.L().Error("http.server_error", zap.Error(err))
	ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: "server error"})
}
