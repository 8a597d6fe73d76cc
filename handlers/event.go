package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type EventHandler struct {
	Service *services.EventService
	logger  *zap.Logger
}

func NewEventHandler(service *services.EventService, logger *zap.Logger) *EventHandler {
	return &EventHandler{Service: service, logger: logger}
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(c *gin.Context) {
	limit, offset := pagination(c)
	events, err := h.Service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "limit": limit, "offset": offset})
}

// UpcomingEvents handles GET /events/upcoming
func (h *EventHandler) UpcomingEvents(c *gin.Context) {
	limit, offset := pagination(c)
	events, err := h.Service.Upcoming(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "limit": limit, "offset": offset})
}

// OrganizationEvents handles GET /events/organization/:org_id
func (h *EventHandler) OrganizationEvents(c *gin.Context) {
	events, err := h.Service.ByOrganization(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetEvent handles GET /events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	event, err := h.Service.Create(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// UpdateEvent handles PUT /events/:id
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	event, err := h.Service.Update(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/:id
func (h *EventHandler) DeleteEvent(c *gin.Context) {
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

// ListCollaborators handles GET /events/:id/collaborators
func (h *EventHandler) ListCollaborators(c *gin.Context) {
	collaborators, err := h.Service.ListCollaborators(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

type collaboratorRequest struct {
	OrganizationID string `json:"organization_id" binding:"required,uuid"`
}

// AddCollaborator handles POST /events/:id/collaborators
func (h *EventHandler) AddCollaborator(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req collaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Service.AddCollaborator(c.Request.Context(), id, c.Param("id"), req.OrganizationID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event_id": c.Param("id"), "organization_id": req.OrganizationID})
}

// RemoveCollaborator handles DELETE /events/:id/collaborators/:org_id
func (h *EventHandler) RemoveCollaborator(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.RemoveCollaborator(c.Request.Context(), id, c.Param("id"), c.Param("org_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBeneficiaries handles GET /events/:id/beneficiaries
func (h *EventHandler) ListBeneficiaries(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	beneficiaries, err := h.Service.ListBeneficiaries(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"beneficiaries": beneficiaries})
}

// AddBeneficiary handles POST /events/:id/beneficiaries
func (h *EventHandler) AddBeneficiary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.AddBeneficiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := h.Service.AddBeneficiary(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}
