package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	Service *services.UserService
	logger  *zap.Logger
}

func NewUserHandler(service *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{Service: service, logger: logger}
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	user, err := h.Service.GetMe(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	users, err := h.Service.ListUsers(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "limit": limit, "offset": offset})
}

// SearchUsers handles GET /users/search?q=
func (h *UserHandler) SearchUsers(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	users, err := h.Service.SearchUsers(c.Request.Context(), id, query, queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "query": query})
}

// CountByRole handles GET /users/count-by-role
func (h *UserHandler) CountByRole(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	counts, err := h.Service.CountByRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// UsersWithRole handles GET /users/with-role/:role
func (h *UserHandler) UsersWithRole(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	role, ok := roleParam(c, "role")
	if !ok {
		return
	}
	users, err := h.Service.UsersWithRole(c.Request.Context(), id, role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "users": users})
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	user, err := h.Service.GetUser(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUserRoles handles GET /users/:id/roles
func (h *UserHandler) GetUserRoles(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID := c.Param("id")
	roles, err := h.Service.UserRoles(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "roles": roles})
}

// UpdateUser handles PUT /users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req db.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, err := h.Service.UpdateUser(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Service.DeleteUser(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddRole handles POST /users/:id/roles/:role
func (h *UserHandler) AddRole(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	role, ok := roleParam(c, "role")
	if !ok {
		return
	}
	userID := c.Param("id")
	if err := h.Service.AddRole(c.Request.Context(), id, userID, role); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role, "granted": true})
}

// RemoveRole handles DELETE /users/:id/roles/:role
func (h *UserHandler) RemoveRole(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	role, ok := roleParam(c, "role")
	if !ok {
		return
	}
	userID := c.Param("id")
	if err := h.Service.RemoveRole(c.Request.Context(), id, userID, role); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role, "granted": false})
}
