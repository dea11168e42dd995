package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kanban-realtime/internal/hub"
)

// MetricsResponse represents the metrics response
type MetricsResponse struct {
	Service     string             `json:"service"`
	Timestamp   time.Time          `json:"timestamp"`
	Uptime      int64              `json:"uptime_seconds"`
	Connections *ConnectionMetrics `json:"connections"`
	Messages    *MessageMetrics    `json:"messages"`
}

// ConnectionMetrics represents connection-related metrics
type ConnectionMetrics struct {
	Active         int `json:"active"`
	ActiveChannels int `json:"active_channels"`
}

// MessageMetrics represents frame-related metrics
type MessageMetrics struct {
	SentToClients int64 `json:"sent_to_clients"`
	Failed        int64 `json:"failed"`
}

// metricsHandler handles metrics requests
func metricsHandler(c *gin.Context, h *hub.Hub) {
	stats := h.GetStats()

	response := MetricsResponse{
		Service:   "kanban-realtime",
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(startTime).Seconds()),
		Connections: &ConnectionMetrics{
			Active:         stats.ActiveConnections,
			ActiveChannels: stats.ActiveChannels,
		},
		Messages: &MessageMetrics{
			SentToClients: stats.TotalMessagesSent,
			Failed:        stats.TotalMessagesFailed,
		},
	}

	c.JSON(http.StatusOK, response)
}
