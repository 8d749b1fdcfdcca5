package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/middleware"
	"github.com/healthy-futures/contest-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// subjectFromContext builds the authorization subject for the request:
// who is logged in and who they currently act as.
func subjectFromContext(c *gin.Context) authz.Subject {
	claims := claimsFromContext(c)
	if claims == nil {
		return authz.Subject{}
	}
	return authz.NewSubject(claims.UserID, c.GetString(middleware.ContextActiveKey))
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
