package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hobbyhub/internal/chat"
	"hobbyhub/internal/config"
	"hobbyhub/internal/db"
	"hobbyhub/internal/group"
	myMiddleware "hobbyhub/internal/middleware"
	"hobbyhub/internal/notification"
	"hobbyhub/internal/realtime"
	"hobbyhub/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Platform layer: Postgres.
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Msg("database ready")

	// Platform layer: the message broker for cross-process fan-out.
	var broker realtime.Broker
	switch cfg.Broker {
	case "memory":
		broker = realtime.NewMemoryBroker()
		log.Warn().Msg("using in-process broker, fan-out limited to this node")
	default:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("connect to redis")
		}
		broker = realtime.NewRedisBroker(redisClient)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis ready")
	}

	// Realtime core.
	gateway := realtime.NewGateway(broker, log)
	dispatcher := notification.NewDispatcher(gateway, log)

	// Features.
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	groupRepo := group.NewRepository(database.Conn)
	groupService := group.NewService(groupRepo, userService, dispatcher, log)
	groupHandler := group.NewHandler(groupService, log)

	chatRepo := chat.NewRepository(database.Conn)
	chatService := chat.NewService(chatRepo, gateway, dispatcher, log)
	chatHandler := chat.NewHandler(chatService, gateway, cfg.HistoryLimit, log)

	notificationHandler := notification.NewHandler(gateway, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	// Public routes.
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes (require JWT).
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/me", userHandler.Me)

		r.Post("/api/groups", groupHandler.CreateGroup)
		r.Get("/api/groups", groupHandler.ListGroups)
		r.Post("/api/groups/{groupID}/join", groupHandler.Join)
		r.Post("/api/groups/{groupID}/leave", groupHandler.Leave)
		r.Get("/api/groups/{groupID}/members", groupHandler.Members)
		r.Get("/api/groups/mine", groupHandler.MyGroups)
		r.Post("/api/groups/{groupID}/posts", groupHandler.CreatePost)
		r.Get("/api/groups/{groupID}/posts", groupHandler.ListPosts)

		r.Get("/chat/ws/{groupID}", chatHandler.ServeWs)
		r.Get("/chat/conversations", chatHandler.GetConversations)
		r.Get("/chat/{groupID}", chatHandler.GetHistory)
		r.Post("/chat/dm/{targetID}", chatHandler.StartDirect)

		r.Get("/notifications/ws", notificationHandler.ServeWs)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}
