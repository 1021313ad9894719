package middleware

import (
	"net/http"
	"strings"

	"safespace/internal/infrastructure/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token issued by the token provider and
// stores the subject on the request context.
func AuthMiddleware(tokens *auth.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("room_id", claims.RoomID)
		c.Next()
	}
}
