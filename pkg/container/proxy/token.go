package proxy

import (
	"errors"
	"fmt"
	"strings"

	"serverless-container/pkg/container"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for bearer tokens that fail verification
var ErrInvalidToken = errors.New("invalid bearer token")

// BearerTokenVerifier validates HMAC signed bearer tokens. It is the identity
// source of last resort when API Gateway did not run an authorizer.
type BearerTokenVerifier struct {
	secret []byte
}

// NewBearerTokenVerifier creates a verifier. An empty secret disables it.
func NewBearerTokenVerifier(secret string) *BearerTokenVerifier {
	return &BearerTokenVerifier{secret: []byte(secret)}
}

// Enabled reports whether a secret was configured
func (v *BearerTokenVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify returns the claims of a valid "Bearer <token>" header value. It
// returns nil claims when the verifier is disabled or no token was sent.
func (v *BearerTokenVerifier) Verify(authorization string) (map[string]interface{}, error) {
	if !v.Enabled() || authorization == "" {
		return nil, nil
	}

	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return map[string]interface{}(claims), nil
}

// apply fills identity from a valid bearer token. Invalid tokens leave the
// identity anonymous; authorization is the application's decision.
func (v *BearerTokenVerifier) apply(identity *container.Identity, authorization string) {
	claims, err := v.Verify(authorization)
	if err != nil || claims == nil {
		return
	}
	identity.AuthType = "JWT"
	identity.Claims = claims
	identity.Principal = principalFromClaims(claims)
}
