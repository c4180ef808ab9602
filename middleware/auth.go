package middleware

import (
	"net/http"
	"strings"

	"github.com/Ammar797/treatz-backend/identity"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// AuthMiddleware resolves the caller identity. Requests without an
// Authorization header are internal service calls; a header carrying an
// invalid token is rejected.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(callerKey, identity.Internal())
			c.Next()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "message": "Bearer token required"})
			return
		}

		caller, err := identity.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "message": "Invalid token"})
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireKind rejects callers whose kind is not listed.
func RequireKind(kinds ...identity.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := CallerFrom(c)
		for _, k := range kinds {
			if caller.Kind == k {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ACCESS_DENIED", "message": "Caller is not allowed to access this resource"})
	}
}

// CallerFrom returns the identity set by AuthMiddleware. A request that
// never passed through it is treated as internal.
func CallerFrom(c *gin.Context) identity.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(identity.Caller); ok {
			return caller
		}
	}
	return identity.Internal()
}
