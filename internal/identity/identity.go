// Package identity resolves the optional submitting identity from a
// bearer credential.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for a credential that is present but unusable
var ErrInvalidToken = errors.New("invalid bearer token")

// Resolver maps an Authorization header value to a user id. An empty
// header resolves to the anonymous identity "".
type Resolver interface {
	Resolve(ctx context.Context, authorization string) (string, error)
}

// Anonymous treats every request as anonymous
type Anonymous struct{}

func (Anonymous) Resolve(context.Context, string) (string, error) { return "", nil }

// JWTResolver validates HMAC-signed JWTs and returns their subject
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTResolver creates a resolver. issuer and audience are checked when set.
func NewJWTResolver(secret, issuer, audience string) (*JWTResolver, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTResolver{secret: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

func (r *JWTResolver) Resolve(_ context.Context, authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", nil
	}
	if !strings.HasPrefix(authorization, "Bearer ") {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := r.parser.ParseWithClaims(strings.TrimSpace(authorization[7:]), claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
