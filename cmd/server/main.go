package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rishik-v/pulseguard/internal/api"
	"github.com/rishik-v/pulseguard/internal/config"
	"github.com/rishik-v/pulseguard/internal/db"
	"github.com/rishik-v/pulseguard/internal/middleware"
	"github.com/rishik-v/pulseguard/internal/notifier"
	"github.com/rishik-v/pulseguard/internal/observ"
	"github.com/rishik-v/pulseguard/internal/presence"
	"github.com/rishik-v/pulseguard/internal/repository/postgres"
	"github.com/rishik-v/pulseguard/internal/ws"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 3. Connect to Postgres and Redis
	//
	// Background() at startup on purpose: there is no parent request or
	// deadline yet — startup is "take as long as you need to connect".
	// ---------------------------------------------------------------
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	tracker, err := presence.New(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer tracker.Close()

	// ---------------------------------------------------------------
	// 4. Repositories and the realtime core
	//
	// The hub gets the registry injected and talks to the durable store
	// only through the notifier — its handlers never block on I/O.
	// ---------------------------------------------------------------
	pool := database.Pool()
	alertRepo := postgres.NewAlertStore(pool)
	notificationRepo := postgres.NewNotificationStore(pool)
	chatRepo := postgres.NewChatMessageStore(pool)
	userRepo := postgres.NewUserStore(pool)

	sink := notifier.New(alertRepo, notificationRepo, chatRepo, logger)
	defer sink.Wait()

	registry := ws.NewRegistry()
	hub := ws.NewHub(registry, sink, logger)
	wsHandler := ws.NewHandler(hub, tracker, logger)

	// ---------------------------------------------------------------
	// 5. HTTP server
	// ---------------------------------------------------------------
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting pulseguard",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	// Health is PUBLIC — load balancers hit this, and operators read the
	// live connection count off it.
	srv.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"connectedUsers": hub.ConnectedUsers(),
			"timestamp":      time.Now().UTC(),
		})
	})

	// The websocket endpoint is public too: a connection is anonymous
	// until its register event, and the live protocol trusts the caller's
	// payload (the application layer in front of it does the vetting).
	srv.GET("/ws", wsHandler.Serve)

	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, logger)
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	// Everything else under /v1 requires a valid JWT.
	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	alertHandler := api.NewAlertHandler(alertRepo, chatRepo, logger)
	v1.GET("/alerts", alertHandler.List)
	v1.GET("/alerts/:id", alertHandler.Get)
	v1.GET("/alerts/:id/messages", alertHandler.Messages)

	notificationHandler := api.NewNotificationHandler(notificationRepo, logger)
	v1.GET("/notifications", notificationHandler.List)
	v1.POST("/notifications/:id/read", notificationHandler.MarkRead)

	userHandler := api.NewUserHandler(userRepo, logger)
	v1.GET("/users/me", userHandler.Me)

	adminHandler := api.NewAdminHandler(tracker, logger)
	admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/presence", adminHandler.Presence)

	return srv.Run(":" + cfg.Port)
}
