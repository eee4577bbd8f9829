package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sheetcalc/api/internal/service"
)

type AccessChecker interface {
	AccessCheck(ctx context.Context, accountID string) (service.Entitlement, error)
}

// RequireAccess lets the request through only while the account holds an
// active subscription or trial. It must run after Auth.
func RequireAccess(checker AccessChecker, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := AccountID(c)
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization token required"})
			return
		}

		_, err := checker.AccessCheck(c.Request.Context(), accountID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrSubscriptionRequired):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Subscription required"})
		case errors.Is(err, service.ErrInvalidToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
		default:
			log.Error().Err(err).Str("account_id", accountID).Msg("access check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		}
	}
}
