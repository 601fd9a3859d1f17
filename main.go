package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchatgo/internal/config"
	"groupchatgo/internal/database/db_client"
	"groupchatgo/internal/http/chathandler"
	"groupchatgo/internal/http/http_server"
	"groupchatgo/internal/redis/redis_client"
	"groupchatgo/internal/services/chat"
	"groupchatgo/internal/services/notification"
	"groupchatgo/internal/store"
	"groupchatgo/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis (broadcast bus)
	redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. Postgres db client + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort,
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()
	if err := store.EnsureSchema(ctx, pgDb); err != nil {
		Log.Fatal("pg-schema", zap.Error(err))
	}
	st := store.NewPostgres(pgDb)

	// 5. Broadcast bus + services
	hub := ws.NewHub()
	broadcaster := ws.NewRedisBroadcaster(redisClient)
	notifSvc := notification.NewNotificationService(st, broadcaster)
	chatSvc := chat.NewChatService(st, broadcaster, notifSvc, cfg.RoomID, cfg.DeleteRoleSet())

	// 6. WS server + typing expiry janitor
	wsSrv := ws.NewWsServer(hub, redisClient, st, chatSvc, notifSvc,
		cfg.JwtSecret, cfg.RoomID, time.Duration(cfg.TypingTTLSeconds)*time.Second)
	wsSrv.RunTypingJanitor(ctx)

	// 7. HTTP + WS server
	handler := chathandler.New(chatSvc, notifSvc, st,
		cfg.JwtSecret, time.Duration(cfg.TokenTTLHours)*time.Hour, cfg.MentorCode)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, handler, st, cfg.JwtSecret)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
