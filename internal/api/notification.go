package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rishik-v/pulseguard/internal/middleware"
	"github.com/rishik-v/pulseguard/internal/repository"
	"go.uber.org/zap"
)

// NotificationHandler is the offline-recipient inbox: the rows the notifier
// wrote for alerts that could not be delivered live.
type NotificationHandler struct {
	repo   repository.NotificationRepository
	logger *zap.Logger
}

func NewNotificationHandler(repo repository.NotificationRepository, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger}
}

// List handles GET /v1/notifications — the caller's pending notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c).String()

	notifications, err := h.repo.ListPending(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkRead handles POST /v1/notifications/:id/read
//
// Recipient scoping happens in the store (the UPDATE matches recipient_id),
// so a user marking someone else's notification just gets a 404.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification ID"})
		return
	}

	userID := middleware.GetUserID(c).String()
	ok, err := h.repo.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		h.logger.Error("failed to mark notification read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
