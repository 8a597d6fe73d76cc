package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyIdentity holds the authenticated Identity
	ContextKeyIdentity ContextKey = "identity"
	// ContextKeyUserID mirrors Identity.UserID for request logging
	ContextKeyUserID ContextKey = "user_id"
)

// SetIdentity stores the authenticated identity on the request context
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(string(ContextKeyIdentity), id)
	c.Set(string(ContextKeyUserID), id.UserID)
}

// IdentityFrom returns the identity stored by SetIdentity
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(string(ContextKeyIdentity))
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	if !ok || !id.Authenticated() {
		return Identity{}, false
	}
	return id, true
}

// AuthzMiddleware gates whole route groups on an authorization question
type AuthzMiddleware struct {
	Authorizer Authorizer
	logger     *zap.Logger
}

// NewAuthzMiddleware creates a new authorization middleware
func NewAuthzMiddleware(az Authorizer, logger *zap.Logger) *AuthzMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthzMiddleware{Authorizer: az, logger: logger}
}

// RequireSuperAdmin aborts with 403 unless the caller holds SUPER_ADMIN
func (m *AuthzMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := m.identity(c)
		if !ok {
			return
		}
		if !m.Authorizer.IsSuperAdmin(c.Request.Context(), id) {
			m.forbid(c, id, "Super admin privileges required")
			return
		}
		c.Next()
	}
}

// RequireAnyRole aborts with 403 unless the caller holds one of the global roles
func (m *AuthzMiddleware) RequireAnyRole(roles ...Role) gin.HandlerFunc {
	want := NewRoleSet(roles...)
	return func(c *gin.Context) {
		id, ok := m.identity(c)
		if !ok {
			return
		}
		subject, ok := m.Authorizer.Subject(c.Request.Context(), id)
		if !ok || subject.Roles&want == 0 {
			m.forbid(c, id, "Not enough permissions")
			return
		}
		c.Next()
	}
}

// RequireOrgManager aborts with 403 unless the caller can manage the
// organization named by the URL parameter
func (m *AuthzMiddleware) RequireOrgManager(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := m.identity(c)
		if !ok {
			return
		}
		orgID := c.Param(param)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "Organization ID is required",
			})
			return
		}
		if !m.Authorizer.CanManageOrganization(c.Request.Context(), id, orgID) {
			m.forbid(c, id, "You don't have permission to manage this organization")
			return
		}
		c.Next()
	}
}

func (m *AuthzMiddleware) identity(c *gin.Context) (Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User not authenticated",
		})
	}
	return id, ok
}

func (m *AuthzMiddleware) forbid(c *gin.Context, id Identity, message string) {
	m.logger.Info("authz denied",
		zap.String("user_id", id.UserID),
		zap.String("path", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":   "forbidden",
		"message": message,
	})
}
