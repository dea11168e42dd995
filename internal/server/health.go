package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kanban-realtime/internal/hub"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/redis"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Redis      *RedisHealth      `json:"redis,omitempty"`
	WebSocket  *WebSocketInfo    `json:"websocket"`
	Subscriber *SubscriberHealth `json:"subscriber,omitempty"`
	Uptime     int64             `json:"uptime_seconds"`
}

// RedisHealth represents Redis health status
type RedisHealth struct {
	Status string  `json:"status"`
	PingMs float64 `json:"ping_ms,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// WebSocketInfo represents WebSocket server info
type WebSocketInfo struct {
	ActiveConnections int `json:"active_connections"`
	ActiveChannels    int `json:"active_channels"`
}

// SubscriberHealth represents bus subscriber health status
type SubscriberHealth struct {
	Active        bool      `json:"active"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	Channel       string    `json:"channel"`
}

var startTime = time.Now()

// SubscriberHealthProvider interface for getting subscriber health
type SubscriberHealthProvider interface {
	GetHealthInfo() (active bool, lastMessageAt time.Time, channel string)
}

// healthHandler handles health check requests. A node running without redis
// is single-node but healthy; only a configured-and-unreachable redis
// degrades the report.
func healthHandler(c *gin.Context, logger log.Logger, h *hub.Hub, redisClient *redis.Client, subscriber SubscriberHealthProvider) {
	ctx := context.Background()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(startTime).Seconds()),
	}

	if redisClient != nil {
		redisHealth := &RedisHealth{
			Status: "connected",
		}

		pingDuration, err := redisClient.Ping(ctx)
		if err != nil {
			redisHealth.Status = "disconnected"
			redisHealth.Error = err.Error()
			response.Status = "degraded"
			logger.Errorf(ctx, "Redis health check failed: %v", err)
		} else {
			redisHealth.PingMs = float64(pingDuration.Microseconds()) / 1000.0
		}

		response.Redis = redisHealth
	}

	stats := h.GetStats()
	response.WebSocket = &WebSocketInfo{
		ActiveConnections: stats.ActiveConnections,
		ActiveChannels:    stats.ActiveChannels,
	}

	if subscriber != nil {
		active, lastMessageAt, channel := subscriber.GetHealthInfo()
		response.Subscriber = &SubscriberHealth{
			Active:        active,
			LastMessageAt: lastMessageAt,
			Channel:       channel,
		}
	}

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
