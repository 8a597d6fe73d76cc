package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

// Authenticator turns a bearer token into an identity
type Authenticator interface {
	Authenticate(token string) (authz.Identity, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewAuthMiddleware(auth Authenticator, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{auth: auth, logger: logger}
}

// RequireAuth validates the bearer access token and stores the caller's
// identity on the request
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := services.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			return
		}

		id, err := m.auth.Authenticate(token)
		if err != nil {
			m.logger.Debug("token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		authz.SetIdentity(c, id)
		c.Next()
	}
}
