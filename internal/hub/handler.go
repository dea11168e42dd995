package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kanban-realtime/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for now (configure in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler accepts WebSocket connections. Connecting requires no credentials;
// authorization happens per channel when the client subscribes.
type Handler struct {
	hub      *Hub
	logger   log.Logger
	wsConfig WSConfig
}

// WSConfig holds WebSocket configuration
type WSConfig struct {
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, logger log.Logger, wsConfig WSConfig) *Handler {
	return &Handler{
		hub:      hub,
		logger:   logger,
		wsConfig: wsConfig,
	}
}

// HandleWebSocket upgrades the request and registers the connection with
// the hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf(context.Background(), "Failed to upgrade connection: %v", err)
		return
	}

	connection := NewConnection(
		h.hub,
		conn,
		h.wsConfig.PongWait,
		h.wsConfig.PingPeriod,
		h.wsConfig.WriteWait,
		h.wsConfig.MaxMessageSize,
		h.logger,
	)

	h.hub.register <- connection
	connection.Start()

	h.logger.Infof(context.Background(), "WebSocket connection established: socket %s", connection.SocketID())
}

// SetupRoutes sets up WebSocket routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", h.HandleWebSocket)
}
