package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	Service *services.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Service: service, logger: logger}
}

// ListNotifications handles GET /notifications?unread=true
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	notifications, err := h.Service.List(c.Request.Context(), id, c.Query("unread") == "true", limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Service.UnreadCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// MarkRead handles PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.MarkRead(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_read": true})
}

// MarkAllRead handles PUT /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllRead(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// DeleteNotification handles DELETE /notifications/:id
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterDevice handles POST /users/me/devices
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	device, err := h.Service.RegisterDevice(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

// UnregisterDevice handles DELETE /users/me/devices/:token
func (h *NotificationHandler) UnregisterDevice(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.UnregisterDevice(c.Request.Context(), id, c.Param("token")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
