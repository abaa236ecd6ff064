package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/middleware/jwt"
)

// Context keys set by Auth.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// Auth verifies the caller's token and stores the profile id and role in
// the gin context. The token comes from the Authorization header or, for
// WebSocket handshakes, the token query parameter.
func Auth(tm *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if header := c.GetHeader("Authorization"); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if ok && strings.EqualFold(scheme, "Bearer") {
				token = strings.TrimSpace(value)
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := tm.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		id, _ := claims.ProfileID()

		c.Set(UserIDKey, id)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated profile id, or 0 outside Auth.
func UserID(c *gin.Context) uint {
	id, _ := c.Get(UserIDKey)
	uid, _ := id.(uint)
	return uid
}

func Role(c *gin.Context) string {
	return c.GetString(RoleKey)
}
