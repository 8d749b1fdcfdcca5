package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/identity"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/pkg/config"
)

// ContextActiveKey is the gin context key storing the active user ID.
// For students it is always their own ID. For a teacher it is the student
// they are acting as, or their own ID when no valid switch cookie exists.
const ContextActiveKey = "activeUser"

// ActiveIdentity resolves the acting identity from the switch cookie and
// stores it in the context. Must run after JWT. It never rejects a
// request: a bad or expired cookie just falls back to the actor.
func ActiveIdentity(resolver *identity.Resolver, cfg config.IdentityConfig, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		carrier := identity.NewCookieCarrier(c, cfg, secure)
		c.Set(ContextActiveKey, resolver.Active(carrier, claims.UserID))
		c.Next()
	}
}
