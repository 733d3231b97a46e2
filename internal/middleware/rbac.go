package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// RequireScope checks that the admin token grants scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !claims.HasScope(scope) {
			response.AbortFail(c, http.StatusForbidden, response.ErrInsufficientScope)
			return
		}
		c.Next()
	}
}

// RequireAnyScope checks that the admin token grants at least one of scopes.
func RequireAnyScope(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		for _, s := range scopes {
			if claims.HasScope(s) {
				c.Next()
				return
			}
		}
		response.AbortFail(c, http.StatusForbidden, response.ErrInsufficientScope)
	}
}
