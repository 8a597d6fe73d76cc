package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

// respondError maps service errors to the JSON error body. Unknown errors
// are logged and reported as 500 without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
		c.JSON(status, gin.H{"error": code, "message": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, authz.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, authz.ErrAlreadyExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, authz.ErrUnknownRole),
		errors.Is(err, authz.ErrInvalidInput),
		errors.Is(err, authz.ErrSingleAdmin),
		errors.Is(err, authz.ErrLastOrgAdmin),
		errors.Is(err, authz.ErrLastSuperAdmin),
		errors.Is(err, authz.ErrCannotRemoveSelf):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": message})
}

// roleParam parses a role from the URL. An unknown role is 422: the path is
// well formed but names nothing.
func roleParam(c *gin.Context, name string) (authz.Role, bool) {
	role, err := authz.ParseRole(c.Param(name))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unprocessable_entity", "message": err.Error()})
		return 0, false
	}
	return role, true
}

// identity returns the caller set by the auth middleware, writing 401 when absent
func identity(c *gin.Context) (authz.Identity, bool) {
	id, ok := authz.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User not authenticated"})
	}
	return id, ok
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = queryInt(c, "limit", 20)
	offset = queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
