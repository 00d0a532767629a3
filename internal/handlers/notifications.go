package handlers

import (
	"strconv"

	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	Notifications *services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Notifications: notifications}
}

// GetNotifications lists notifications newest first. Supports ?unread=true and
// ?limit=N.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Notifications.ListForUser(c.Request.Context(), p, unreadOnly, limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Notifications fetched successfully", list)
}

// GetUnreadCount returns {"count": N}.
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	count, err := h.Notifications.UnreadCount(c.Request.Context(), p)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Unread count fetched successfully", gin.H{"count": count})
}

// MarkAsRead marks a single notification as read.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkRead(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Notification marked as read", n)
}

// MarkAllAsRead marks every unread notification as read.
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), p)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Notifications marked as read", gin.H{"updated": updated})
}
