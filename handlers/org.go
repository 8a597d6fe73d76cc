package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/authz"
	"go.uber.org/zap"
)

// OrgHandler handles organization-related HTTP requests
type OrgHandler struct {
	orgService *authz.OrgService
	logger     *zap.Logger
}

// NewOrgHandler creates a new OrgHandler
func NewOrgHandler(orgService *authz.OrgService, logger *zap.Logger) *OrgHandler {
	return &OrgHandler{orgService: orgService, logger: logger}
}

// CreateOrg handles POST /organizations
func (h *OrgHandler) CreateOrg(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var input authz.CreateOrgInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	org, err := h.orgService.CreateOrg(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// ListOrgs handles GET /organizations
func (h *OrgHandler) ListOrgs(c *gin.Context) {
	limit, offset := pagination(c)
	orgs, err := h.orgService.ListOrgs(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// ListMyOrgs handles GET /organizations/mine
func (h *OrgHandler) ListMyOrgs(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	orgs, err := h.orgService.ListUserOrgs(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// GetOrg handles GET /organizations/:id
func (h *OrgHandler) GetOrg(c *gin.Context) {
	org, err := h.orgService.GetOrg(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// UpdateOrg handles PUT /organizations/:id
func (h *OrgHandler) UpdateOrg(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var input authz.UpdateOrgInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	org, err := h.orgService.UpdateOrg(c.Request.Context(), id, c.Param("id"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// DeleteOrg handles DELETE /organizations/:id
func (h *OrgHandler) DeleteOrg(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.orgService.DeleteOrg(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetOrgMembers handles GET /organizations/:id/members
func (h *OrgHandler) GetOrgMembers(c *gin.Context) {
	members, err := h.orgService.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddOrgMember handles POST /organizations/:id/members
func (h *OrgHandler) AddOrgMember(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var input authz.AddMemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		// an unknown role in the body fails here as a bad request
		badRequest(c, err.Error())
		return
	}

	member, err := h.orgService.AddMember(c.Request.Context(), id, c.Param("id"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

type updateMemberRoleRequest struct {
	Role authz.Role `json:"role" binding:"required"`
}

// UpdateOrgMemberRole handles PUT /organizations/:id/members/:user_id
func (h *OrgHandler) UpdateOrgMemberRole(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req updateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	member, err := h.orgService.UpdateMemberRole(c.Request.Context(), id, c.Param("id"), c.Param("user_id"), req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// RemoveOrgMember handles DELETE /organizations/:id/members/:user_id
func (h *OrgHandler) RemoveOrgMember(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.orgService.RemoveMember(c.Request.Context(), id, c.Param("id"), c.Param("user_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
