package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ezmail/pkg/rbac"
	"ezmail/pkg/util"
)

const (
	ownerIDKey = "owner_id"
	roleKey    = "role"
)

// AuthMiddleware 校验 bearer access token，把 owner_id / role 放进 gin context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := util.ParseJWTClaims(token, util.PurposeAccess, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ownerIDKey, claims.OwnerID)
		c.Set(roleKey, rbac.NormalizeRole(claims.Role))
		c.Next()
	}
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(roleKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}
		if err := rbac.CheckPermission(role.(string), permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// OwnerID returns the authenticated owner, or false outside AuthMiddleware.
func OwnerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ownerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
