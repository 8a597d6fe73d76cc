package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/moxer-mmh/Tweeza/authz"
)

// uuidParams are the path parameters that name rows by primary key
var uuidParams = map[string]bool{
	"id":       true,
	"user_id":  true,
	"org_id":   true,
	"event_id": true,
}

// RequireUUIDParams answers 404 when a row id in the path is not a UUID.
// No such row can exist, and Postgres would reject the cast anyway.
func RequireUUIDParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			if uuidParams[p.Key] && !validUUID(p.Value) {
				respondError(c, nil, fmt.Errorf("%w: %s %q", authz.ErrNotFound, p.Key, p.Value))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// validUUID accepts only the canonical 36-character form
func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
