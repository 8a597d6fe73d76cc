package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type ResourceHandler struct {
	Service *services.ResourceService
	logger  *zap.Logger
}

func NewResourceHandler(service *services.ResourceService, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{Service: service, logger: logger}
}

// ListEventRequests handles GET /resources/requests/event/:event_id
func (h *ResourceHandler) ListEventRequests(c *gin.Context) {
	requests, err := h.Service.ListByEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// CreateRequest handles POST /resources/requests/event/:event_id
func (h *ResourceHandler) CreateRequest(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := h.Service.CreateRequest(c.Request.Context(), id, c.Param("event_id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GetRequest handles GET /resources/requests/:id
func (h *ResourceHandler) GetRequest(c *gin.Context) {
	r, err := h.Service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": r, "remaining": r.Remaining()})
}

// UpdateRequest handles PUT /resources/requests/:id
func (h *ResourceHandler) UpdateRequest(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := h.Service.UpdateRequest(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRequest handles DELETE /resources/requests/:id
func (h *ResourceHandler) DeleteRequest(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.DeleteRequest(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Contribute handles POST /resources/contributions
func (h *ResourceHandler) Contribute(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.CreateContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	contribution, err := h.Service.Contribute(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, contribution)
}

// MyContributions handles GET /resources/contributions/mine
func (h *ResourceHandler) MyContributions(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	contributions, err := h.Service.MyContributions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributions": contributions})
}

// RequestContributions handles GET /resources/contributions/request/:id
func (h *ResourceHandler) RequestContributions(c *gin.Context) {
	contributions, err := h.Service.ContributionsByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributions": contributions})
}

// ConfirmDelivery handles POST /resources/contributions/:id/confirm
func (h *ResourceHandler) ConfirmDelivery(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	contribution, err := h.Service.ConfirmDelivery(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contribution)
}
