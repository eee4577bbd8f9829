package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sheetcalc/api/internal/security"
)

const (
	ctxAccessClaims = "access_claims"
)

type Authenticator interface {
	Authenticate(accessToken string) (*security.AccessClaims, error)
}

// Auth verifies the bearer access token and stores its claims on the
// context. Account state is checked by the handlers that need it.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization token required"})
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		claims, err := auth.Authenticate(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set(ctxAccessClaims, claims)
		c.Next()
	}
}

func Claims(c *gin.Context) (*security.AccessClaims, bool) {
	value, ok := c.Get(ctxAccessClaims)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*security.AccessClaims)
	return claims, ok
}

// AccountID returns the authenticated account, or "" outside Auth.
func AccountID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.AccountID
	}
	return ""
}

// DeviceID returns the device the access token was issued to.
func DeviceID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.DeviceID
	}
	return ""
}
