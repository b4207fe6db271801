package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rishik-v/pulseguard/internal/presence"
	"go.uber.org/zap"
)

// AdminHandler serves the operator dashboard surface. Routes using it sit
// behind RequireRole(admin) in addition to the JWT middleware.
type AdminHandler struct {
	presence *presence.Tracker
	logger   *zap.Logger
}

func NewAdminHandler(tracker *presence.Tracker, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{presence: tracker, logger: logger}
}

// Presence handles GET /v1/admin/presence — identities online across every
// instance sharing the Redis presence set.
func (h *AdminHandler) Presence(c *gin.Context) {
	users, err := h.presence.Online(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read presence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":    users,
		"count":     len(users),
		"timestamp": time.Now().UTC(),
	})
}
