package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
)

// SessionValidator checks a token's JTI against the user's latest login.
type SessionValidator interface {
	ValidateUserSession(ctx context.Context, userID, jti string) error
}

// CheckSingleDeviceSession rejects tokens from a login that has since been
// superseded on another device.
func CheckSingleDeviceSession(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Admin tokens are not bound to a device.
		if claims.TokenType != service.TokenTypeUser {
			c.Next()
			return
		}

		if err := sessions.ValidateUserSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			if errors.Is(err, service.ErrSessionInvalidated) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
				return
			}
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Next()
	}
}
