package middleware

import (
	"net/http"
	"strings"

	"escrow_engine/internal/auth"

	"github.com/gin-gonic/gin"
)

// JWT authenticates requests via "Authorization: Bearer <token>", with a
// "token" query parameter fallback for websocket clients that cannot set
// headers. Sets user_id and is_admin in the gin context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, admin, err := auth.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", userID)
		c.Set("is_admin", admin)
		c.Next()
	}
}

// AdminJWT is JWT plus an admin claim check.
func AdminJWT() gin.HandlerFunc {
	jwt := JWT()
	return func(c *gin.Context) {
		jwt(c)
		if c.IsAborted() {
			return
		}
		if admin, ok := c.Get("is_admin"); !ok || admin != true {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		}
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
