package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// RequireCandidateJWT validates a candidate token from the Authorization header.
func RequireCandidateJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireRole(authService, service.TokenRoleCandidate, response.ErrCandidateAccessOnly, false)
}

// RequireAdminJWT validates an admin token from the Authorization header.
// EventSource cannot send headers, so ?token= is accepted as well.
func RequireAdminJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireRole(authService, service.TokenRoleAdmin, response.ErrAdminAccessOnly, true)
}

// RequireCandidateWSAuth validates a candidate token from ?token=. Browsers
// cannot set headers on WebSocket upgrades.
func RequireCandidateWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			tokenStr = bearerToken(c)
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			abortInvalid(c, err)
			return
		}
		if claims.Role != service.TokenRoleCandidate {
			response.AbortFail(c, http.StatusForbidden, response.ErrCandidateAccessOnly)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// CandidateID returns the candidate identity of the request, or "".
func CandidateID(c *gin.Context) string {
	claims := GetClaims(c)
	if claims == nil || claims.Role != service.TokenRoleCandidate {
		return ""
	}
	return claims.Subject
}

func requireRole(authService *service.AuthService, role service.TokenRole, wrongRole response.ErrCode, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" && allowQuery {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			abortInvalid(c, err)
			return
		}
		if claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, wrongRole)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abortInvalid(c *gin.Context, err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		return
	}
	response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
}
