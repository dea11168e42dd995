package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

// Handler serves the subscription authorization handshake.
type Handler struct {
	authorizer *ChannelAuthorizer
	sessions   *Sessions
	logger     log.Logger
}

// NewHandler creates a new handshake handler
func NewHandler(authorizer *ChannelAuthorizer, sessions *Sessions, logger log.Logger) *Handler {
	return &Handler{
		authorizer: authorizer,
		sessions:   sessions,
		logger:     logger,
	}
}

// HandleAuth handles the form-encoded subscription handshake. The transport
// calls this endpoint with the socket and channel identity before granting
// access to a presence channel.
func (h *Handler) HandleAuth(c *gin.Context) {
	userID, err := h.sessions.UserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	socketID := c.PostForm("socket_id")
	channelName := c.PostForm("channel_name")
	if socketID == "" || channelName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing socket_id or channel_name"})
		return
	}

	grant, err := h.authorizer.Authorize(c.Request.Context(), socketID, channelName, userID)
	switch {
	case errors.Is(err, realtime.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel name"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found or unauthorized"})
	case err != nil:
		h.logger.Errorf(c.Request.Context(), "Channel authorization failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		c.JSON(http.StatusOK, grant)
	}
}

// SetupRoutes sets up the handshake route
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.POST("/realtime/auth", h.HandleAuth)
}
