package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextUserIDKey is the gin context key holding the authenticated user id.
const ContextUserIDKey = "userID"

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// AuthMiddleware rejects requests without a valid session and stores the caller's
// id under ContextUserIDKey.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authenticator.Authenticate(c.Request)
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}
