package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"groupchatgo/internal/auth"
	"groupchatgo/internal/metrics"
	"groupchatgo/internal/services/chat"
	"groupchatgo/internal/services/notification"
	"groupchatgo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second // must be < pongWait
	dispatchTimeout = 1900 * time.Millisecond
	maxFrameSize    = 1 << 20
)

var (
	errNotAuthenticated = errors.New("not_authenticated")
	errBadCredential    = errors.New("invalid_credential")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // dev-only
}

// ConnContext is handed to every event handler.
type ConnContext struct {
	Conn   *clientConn
	Server *WsServer
}

type WsServer struct {
	hub      *Hub
	subMgr   *subscriptionManager
	router   *Router
	registry *registry
	typing   *TypingTracker

	chatSvc  chat.IChatService
	notifSvc notification.INotificationService
	store    store.Store

	jwtSecret string
	roomID    string
	typingTTL time.Duration
}

func NewWsServer(h *Hub, rdc *redis.Client, st store.Store,
	chatSvc chat.IChatService, notifSvc notification.INotificationService,
	jwtSecret, roomID string, typingTTL time.Duration) *WsServer {

	srv := &WsServer{
		hub:       h,
		subMgr:    newSubscriptionManager(rdc, h),
		router:    NewRouter(),
		registry:  newRegistry(),
		typing:    NewTypingTracker(),
		chatSvc:   chatSvc,
		notifSvc:  notifSvc,
		store:     st,
		jwtSecret: jwtSecret,
		roomID:    roomID,
		typingTTL: typingTTL,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	// ─────────────────── Client joined ────────────────────────
	// The room channel is public: mutation broadcasts are visible before
	// authenticate; writes are rejected until an identity is bound.
	conn := newClientConn(uuid.NewString(), rawConn)
	s.registry.add(conn)
	s.joinChannel(conn, s.roomID)
	metrics.WsConnections.Inc()

	go s.reader(conn)
	go s.pinger(conn)
}

// RunTypingJanitor expires stale typing entries so a crashed client cannot
// leave a permanent "is typing" indicator. Start once at service boot.
func (s *WsServer) RunTypingJanitor(ctx context.Context) {
	tk := time.NewTicker(s.typingTTL / 2)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				for _, body := range s.typing.Expire(s.typingTTL) {
					s.roomBroadcast("user:stop_typing", body, nil)
				}
			}
		}
	}()
}

// ---------------------------------------------------------------------------
//  Event handlers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, "authenticate", s.handleAuthenticate)
	Register(s.router, "chatMessage", s.handleChatMessage)
	Register(s.router, "deleteMessage", s.handleDeleteMessage)
	Register(s.router, "message:react", s.handleReact)
	Register(s.router, "message:pinToggle", s.handlePinToggle)
	Register(s.router, "typing", s.handleTyping)
	Register(s.router, "stop_typing", s.handleStopTyping)
}

// handleAuthenticate verifies the token, binds the identity, joins the
// private user channel and pushes the unread-notification snapshot. A bad
// credential leaves the connection open and unauthenticated.
func (s *WsServer) handleAuthenticate(ctx context.Context, cc *ConnContext, req AuthenticateRequest) (AuthenticatedBody, error) {
	claims, err := auth.ParseToken(req.Credential, s.jwtSecret)
	if err != nil {
		return AuthenticatedBody{}, errBadCredential
	}
	user, err := s.store.FindUser(ctx, claims.UserID)
	if err != nil {
		return AuthenticatedBody{}, errBadCredential
	}

	// Re-authenticating as someone else migrates the connection: the old
	// private channel, registry binding and typing claim go before the new
	// identity is bound, so the socket never receives another user's
	// notifications.
	if prevID, _, _, bound := cc.Conn.identity(); bound && prevID != user.ID {
		s.leaveChannel(cc.Conn, "user:"+prevID)
		s.registry.unbind(cc.Conn, prevID)
		if body, removed := s.typing.DropConn(prevID, cc.Conn.id); removed {
			s.roomBroadcast("user:stop_typing", body, nil)
		}
	}

	cc.Conn.bind(user.ID, user.Role, user.Name)
	s.registry.bind(cc.Conn, user.ID)
	s.joinChannel(cc.Conn, "user:"+user.ID)

	// Point-in-time snapshot, not a subscription.
	if unread, err := s.notifSvc.UnreadCount(ctx, user.ID); err == nil {
		_ = cc.Conn.writeEvent("notification:unread-count", UnreadCountBody{UnreadCount: unread})
	} else {
		zap.L().Warn("ws.unread_snapshot", zap.Error(err))
	}

	return AuthenticatedBody{UserID: user.ID, Role: user.Role}, nil
}

func (s *WsServer) handleChatMessage(ctx context.Context, cc *ConnContext, req ChatMessageRequest) (*store.Message, error) {
	userID, _, _, ok := cc.Conn.identity()
	if !ok {
		return nil, errNotAuthenticated
	}
	return s.chatSvc.CreateMessage(ctx, userID, req.Text, req.Attachments)
}

func (s *WsServer) handleDeleteMessage(ctx context.Context, cc *ConnContext, req DeleteMessageRequest) (AckBody, error) {
	userID, _, _, ok := cc.Conn.identity()
	if !ok {
		return AckBody{}, errNotAuthenticated
	}
	return AckBody{}, s.chatSvc.SoftDeleteMessage(ctx, userID, req.MessageID)
}

func (s *WsServer) handleReact(ctx context.Context, cc *ConnContext, req ReactRequest) (AckBody, error) {
	userID, _, _, ok := cc.Conn.identity()
	if !ok {
		return AckBody{}, errNotAuthenticated
	}
	_, err := s.chatSvc.ToggleReaction(ctx, req.MessageID, userID, req.Emoji)
	return AckBody{}, err
}

func (s *WsServer) handlePinToggle(ctx context.Context, cc *ConnContext, req PinToggleRequest) (AckBody, error) {
	userID, _, _, ok := cc.Conn.identity()
	if !ok {
		return AckBody{}, errNotAuthenticated
	}
	_, err := s.chatSvc.TogglePin(ctx, req.MessageID, userID, req.Pin)
	return AckBody{}, err
}

// Typing events are ephemeral: they skip persistence and Redis entirely and
// go straight to the in-process hub, excluding the originator.
func (s *WsServer) handleTyping(_ context.Context, cc *ConnContext, req TypingRequest) (AckBody, error) {
	userID, role, name, ok := cc.Conn.identity()
	if !ok {
		return AckBody{}, errNotAuthenticated
	}
	if req.DisplayName != "" {
		name = req.DisplayName
	}
	s.typing.Start(userID, role, name, cc.Conn.id)
	s.roomBroadcast("user:typing", TypingBody{UserID: userID, Role: role, DisplayName: name}, cc.Conn)
	return AckBody{}, nil
}

func (s *WsServer) handleStopTyping(_ context.Context, cc *ConnContext, _ TypingRequest) (AckBody, error) {
	userID, role, name, ok := cc.Conn.identity()
	if !ok {
		return AckBody{}, errNotAuthenticated
	}
	s.typing.Stop(userID)
	s.roomBroadcast("user:stop_typing", TypingBody{UserID: userID, Role: role, DisplayName: name}, cc.Conn)
	return AckBody{}, nil
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// joinChannel is idempotent per connection: a repeat join (token refresh
// re-sending authenticate) must not bump the subscription refcount again,
// or disconnect would never release it.
func (s *WsServer) joinChannel(c *clientConn, channel string) {
	if !c.markJoined(channel) {
		return
	}
	s.hub.Join(channel, c)
	s.subMgr.Subscribe(channel)
}

func (s *WsServer) leaveChannel(c *clientConn, channel string) {
	if !c.markLeft(channel) {
		return
	}
	s.hub.Leave(channel, c)
	s.subMgr.Unsubscribe(channel)
}

func (s *WsServer) roomBroadcast(event string, body any, except *clientConn) {
	env, err := marshalEnvelope(event, body)
	if err != nil {
		zap.L().Warn("ws.marshal_event", zap.Error(err))
		return
	}
	if except != nil {
		s.hub.BroadcastExcept(s.roomID, env, except)
		return
	}
	s.hub.Broadcast(s.roomID, env)
}

func (s *WsServer) reader(conn *clientConn) {
	defer s.disconnect(conn)

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{Conn: conn, Server: s}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		// Mutation-path errors stay local to the requesting connection.
		if err != nil {
			_ = conn.writeEvent("error", ErrorBody{Message: err.Error()})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		_ = conn.writeEvent(env.Event+"-ack", res)
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			conn.rawConn.Close()
			return
		}
	}
}

// disconnect is the only cancellation signal: drop channel memberships,
// release the Redis subscriptions, and clear stale typing state when this
// was the user's last live connection.
func (s *WsServer) disconnect(conn *clientConn) {
	for _, channel := range conn.joinedChannels() {
		s.leaveChannel(conn, channel)
	}

	userID, _ := s.registry.remove(conn)
	if userID != "" {
		// Typing entries are keyed by connection too: the flag survives
		// only while some connection of the user still claims it.
		if body, removed := s.typing.DropConn(userID, conn.id); removed {
			s.roomBroadcast("user:stop_typing", body, nil)
		}
	}

	metrics.WsConnections.Dec()
	conn.rawConn.Close()
}

func marshalEnvelope(event string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Body: raw})
}
