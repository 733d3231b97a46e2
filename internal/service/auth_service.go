package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/config"
)

// TokenRole distinguishes candidate vs admin tokens.
type TokenRole string

const (
	TokenRoleCandidate TokenRole = "candidate"
	TokenRoleAdmin     TokenRole = "admin"
)

// Admin scopes carried in the "scopes" claim.
const (
	ScopeGradingWrite = "grading:write"
	ScopeResultsRead  = "results:read"
	ScopeMonitorRead  = "monitor:read"
	ScopeAll          = "*"
)

// Claims are the identity provider's token claims. Subject is the opaque
// candidate or admin id.
type Claims struct {
	jwt.RegisteredClaims
	Role   TokenRole `json:"role"`
	Scopes []string  `json:"scopes,omitempty"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, ScopeAll) || slices.Contains(c.Scopes, scope)
}

// AuthService verifies tokens issued by the external identity provider.
// IssueToken exists for operators and tests; the service has no login flow.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// IssueToken signs an HS256 token for subject.
func (s *AuthService) IssueToken(subject string, role TokenRole, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:   role,
		Scopes: scopes,
	}
	if s.cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.JWTAudience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.JWTIssuer))
	}
	if s.cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.JWTAudience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// CandidateID returns the candidate identity of a candidate token.
func (s *AuthService) CandidateID(claims *Claims) (string, error) {
	if claims.Role != TokenRoleCandidate {
		return "", ErrTokenNotCandidate
	}
	return claims.Subject, nil
}
