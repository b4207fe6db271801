package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rishik-v/pulseguard/internal/middleware"
	"github.com/rishik-v/pulseguard/internal/repository"
	"go.uber.org/zap"
)

// AlertHandler serves the durable alert history. The realtime layer pushes
// alerts as they happen; this is where clients (and recipients who were
// offline) read them back afterwards.
type AlertHandler struct {
	alerts repository.AlertRepository
	chats  repository.ChatMessageRepository
	logger *zap.Logger
}

func NewAlertHandler(alerts repository.AlertRepository, chats repository.ChatMessageRepository, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, chats: chats, logger: logger}
}

// List handles GET /v1/alerts?limit=50
//
// Returns alerts the caller triggered or was named a recipient of, newest
// first. The identity filter comes from the JWT, never from a query param.
func (h *AlertHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c).String()

	limit := 50
	if l := c.Query("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	alerts, err := h.alerts.ListByRecipient(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// Get handles GET /v1/alerts/:id
func (h *AlertHandler) Get(c *gin.Context) {
	alert, err := h.alerts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to get alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get alert"})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}

	if !h.canSee(c, alert.UserID, alert.NotifiedUsers) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this alert"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Messages handles GET /v1/alerts/:id/messages?before=123&limit=50
//
// The persisted emergency-chat transcript. Cursor-based: "before" is the
// seq of the oldest message the client already has; 0 means latest page.
func (h *AlertHandler) Messages(c *gin.Context) {
	alertID := c.Param("id")

	alert, err := h.alerts.GetByID(c.Request.Context(), alertID)
	if err != nil {
		h.logger.Error("failed to get alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get alert"})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if !h.canSee(c, alert.UserID, alert.NotifiedUsers) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this alert"})
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	messages, err := h.chats.ListByAlert(c.Request.Context(), alertID, before, limit)
	if err != nil {
		h.logger.Error("failed to list chat messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// canSee allows the trigger, any named recipient, and admins.
func (h *AlertHandler) canSee(c *gin.Context, triggerID string, recipients []string) bool {
	if middleware.GetRole(c) == middleware.RoleAdmin {
		return true
	}
	userID := middleware.GetUserID(c).String()
	if userID == triggerID {
		return true
	}
	for _, r := range recipients {
		if r == userID {
			return true
		}
	}
	return false
}
