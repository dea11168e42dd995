package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kanban-realtime/config"
	"kanban-realtime/internal/auth"
	"kanban-realtime/internal/bus"
	"kanban-realtime/internal/hub"
	"kanban-realtime/internal/membership"
	"kanban-realtime/internal/relay"
	"kanban-realtime/internal/server"
	"kanban-realtime/pkg/jwt"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Failed to load config:", err)
		return
	}

	// Initialize logger
	logger := log.Init(log.ZapConfig{
		Level:    cfg.Logger.Level,
		Mode:     cfg.Logger.Mode,
		Encoding: cfg.Logger.Encoding,
	})

	ctx := context.Background()
	logger.Info(ctx, "Starting realtime collaboration service...")

	// Initialize Redis client (optional). Without redis the node still
	// serves, but events only reach clients connected to this node.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = redis.NewClient(redis.Config{
			Addr:            cfg.Redis.Host,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			UseTLS:          cfg.Redis.UseTLS,
			MaxRetries:      cfg.Redis.MaxRetries,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			PoolSize:        cfg.Redis.PoolSize,
			PoolTimeout:     cfg.Redis.PoolTimeout,
			ConnMaxIdleTime: cfg.Redis.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Redis.ConnMaxLifetime,
		})
		if err != nil {
			logger.Errorf(ctx, "Failed to connect to Redis: %v", err)
			return
		}
		defer redisClient.Close()
		logger.Infof(ctx, "Redis connected successfully to %s", cfg.Redis.Host)
	} else {
		logger.Warn(ctx, "Redis not configured, running in single-node mode")
	}

	// Initialize membership store. Without a database every membership
	// check passes, which is acceptable for local development only.
	var store membership.Store
	if cfg.Postgres.URL != "" {
		pgStore, err := membership.NewPostgresStore(cfg.Postgres.URL, logger)
		if err != nil {
			logger.Errorf(ctx, "Failed to connect to Postgres: %v", err)
			return
		}
		defer pgStore.Close()
		store = membership.NewCachedStore(pgStore, cfg.Postgres.CacheTTL, logger)
		logger.Info(ctx, "Membership store connected")
	} else {
		store = membership.NewPermissiveStore(logger)
		logger.Warn(ctx, "DATABASE_URL not set, membership checks are permissive")
	}

	// Initialize grant signer
	signer := auth.NewSigner(cfg.App.Key, cfg.App.Secret)
	if !signer.Enabled() {
		logger.Warn(ctx, "Broker credentials not configured, subscription grants are unsigned")
	}

	// Initialize session validation
	sessions := auth.NewSessions(jwt.NewValidator(jwt.Config{
		SecretKey: cfg.JWT.SecretKey,
	}), cfg.Cookie.Name)

	// Initialize WebSocket hub
	h := hub.NewHub(signer, logger, cfg.WebSocket.MaxConnections)
	go h.Run()
	logger.Info(ctx, "Hub started")

	// Initialize event bus. With redis, events published on any node reach
	// every node's hub; without it, they go straight to the local hub.
	var publisher bus.Publisher
	var subscriber *bus.Subscriber
	if redisClient != nil {
		publisher = bus.NewRedisPublisher(redisClient, cfg.Realtime.BusChannel, logger)
		subscriber = bus.NewSubscriber(redisClient, h, cfg.Realtime.BusChannel, logger)
		if err := subscriber.Start(); err != nil {
			logger.Errorf(ctx, "Failed to start bus subscriber: %v", err)
			return
		}
		logger.Info(ctx, "Bus subscriber started")
	} else {
		publisher = bus.NewLocalPublisher(h)
	}

	// Setup Gin router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Setup routes
	hub.NewHandler(h, logger, hub.WSConfig{
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingInterval,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}).SetupRoutes(router)

	authorizer := auth.NewChannelAuthorizer(store, signer, logger)
	auth.NewHandler(authorizer, sessions, logger).SetupRoutes(router)

	relay.NewHandler(relay.NewRelay(store, publisher, logger), sessions, logger).SetupRoutes(router)

	// Setup server
	srv := server.New(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Router:      router,
		Logger:      logger,
		Hub:         h,
		RedisClient: redisClient,
		Subscriber:  subscriberOrNil(subscriber),
	})

	// Start server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			logger.Errorf(ctx, "Server error: %v", err)
		}
	}()

	logger.Infof(ctx, "Realtime server listening on %s:%d", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down gracefully...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown components in order
	if subscriber != nil {
		if err := subscriber.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(ctx, "Error shutting down bus subscriber: %v", err)
		}
	}

	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "Error shutting down hub: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "Error shutting down server: %v", err)
	}

	logger.Info(ctx, "Server shutdown complete")
}

// subscriberOrNil keeps a nil *bus.Subscriber from becoming a non-nil
// interface value in the server config.
func subscriberOrNil(s *bus.Subscriber) server.SubscriberHealthProvider {
	if s == nil {
		return nil
	}
	return s
}
