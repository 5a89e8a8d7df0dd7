package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"serverless-container/pkg/container"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// IdentityKey is the key used to store the caller identity in context
const IdentityKey = "identity"

// Claims represents the JWT claims issued by TokenIssuer
type Claims struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs bearer tokens that the container's security context
// writer accepts when no API Gateway authorizer ran
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	issuer   string
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	if duration == 0 {
		duration = time.Hour
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		duration: duration,
		issuer:   "serverless-container",
	}
}

// GenerateToken generates a signed token for a user
func (t *TokenIssuer) GenerateToken(subject, username string, roles []string) (string, error) {
	if len(t.secret) == 0 {
		return "", fmt.Errorf("token issuer has no secret")
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Authentication middleware that requires an identity extracted from the
// invocation event
func Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := container.IdentityFromRequest(c.Request)
		if !ok || identity.Principal == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:     "Unauthorized",
				Message:   "Authentication is required",
				RequestID: c.GetString(RequestIDKey),
				Timestamp: time.Now().Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		c.Set(IdentityKey, identity)

		logrus.WithFields(logrus.Fields{
			"principal": identity.Principal,
			"auth_type": identity.AuthType,
			"path":      c.Request.URL.Path,
		}).Debug("Caller authenticated")

		c.Next()
	}
}

// Authorization middleware that checks the caller's roles. Roles come from
// the "roles" claim or Cognito's "cognito:groups".
func Authorization(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(requiredRoles) == 0 {
			c.Next()
			return
		}

		identity, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:     "Unauthorized",
				Message:   "Authentication is required",
				RequestID: c.GetString(RequestIDKey),
				Timestamp: time.Now().Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		roles := IdentityRoles(identity)
		for _, required := range requiredRoles {
			for _, role := range roles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		logrus.WithFields(logrus.Fields{
			"principal":      identity.Principal,
			"user_roles":     roles,
			"required_roles": requiredRoles,
			"path":           c.Request.URL.Path,
		}).Warn("Authorization failed - insufficient permissions")

		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:     "Forbidden",
			Message:   fmt.Sprintf("Requires one of the roles: %s", strings.Join(requiredRoles, ", ")),
			RequestID: c.GetString(RequestIDKey),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		c.Abort()
	}
}

// GetIdentity returns the caller identity stored by Authentication, or the
// one attached to the invocation
func GetIdentity(c *gin.Context) (*container.Identity, bool) {
	if value, exists := c.Get(IdentityKey); exists {
		if identity, ok := value.(*container.Identity); ok {
			return identity, true
		}
	}
	identity, ok := container.IdentityFromRequest(c.Request)
	if !ok || identity.Principal == "" {
		return nil, false
	}
	return identity, true
}

// IdentityRoles extracts role names from the identity claims
func IdentityRoles(identity *container.Identity) []string {
	if identity == nil {
		return nil
	}

	for _, key := range []string{"roles", "cognito:groups"} {
		switch v := identity.Claims[key].(type) {
		case []string:
			return v
		case []interface{}:
			roles := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					roles = append(roles, s)
				}
			}
			return roles
		case string:
			// Authorizer claims arrive flattened, e.g. "[admin viewer]" or "admin,viewer"
			return strings.FieldsFunc(strings.Trim(v, "[]"), func(r rune) bool {
				return r == ',' || r == ' '
			})
		}
	}
	return nil
}

// HasRole checks if the current caller has a specific role
func HasRole(c *gin.Context, role string) bool {
	identity, ok := GetIdentity(c)
	if !ok {
		return false
	}
	for _, r := range IdentityRoles(identity) {
		if r == role {
			return true
		}
	}
	return false
}
