package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban-realtime/internal/auth"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

// TriggerRequest is the trigger endpoint's request body.
type TriggerRequest struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Handler serves the task-event trigger endpoint.
type Handler struct {
	relay    *Relay
	sessions *auth.Sessions
	logger   log.Logger
}

// NewHandler creates a new trigger handler
func NewHandler(relay *Relay, sessions *auth.Sessions, logger log.Logger) *Handler {
	return &Handler{
		relay:    relay,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleTrigger accepts a task mutation notification from the board
// application and republishes it to the project's broadcast channel.
func (h *Handler) HandleTrigger(c *gin.Context) {
	userID, err := h.sessions.UserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Channel == "" || req.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel or event"})
		return
	}

	err = h.relay.Trigger(c.Request.Context(), req.Channel, req.Event, req.Data, userID)
	switch {
	case errors.Is(err, realtime.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
	case errors.Is(err, ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event name"})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found or unauthorized"})
	case err != nil:
		h.logger.Errorf(c.Request.Context(), "Trigger failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// SetupRoutes sets up the trigger route
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.POST("/realtime/trigger", h.HandleTrigger)
}
