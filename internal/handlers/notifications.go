package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// NotificationHandler serves the caller's in-app notification feed.
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	items, err := h.notifications.ListForProfile(requestContext(c), services.ListNotificationsInput{
		ProfileID:  profileID,
		UnreadOnly: c.Query("unread_only") == "true",
		Limit:      parseIntQuery(c, "limit", 25),
		Offset:     parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"notifications": items})
}

// UnreadCount returns how many unread notifications the caller has.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	count, err := h.notifications.CountUnread(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead marks one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.notifications.MarkRead(requestContext(c), profileID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "notification marked as read"})
}

// MarkAllRead marks every unread notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	updated, err := h.notifications.MarkAllRead(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
