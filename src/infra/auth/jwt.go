// Package auth resolves bearer tokens issued by the login service into
// domain identities.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
	"trackrater/src/infra/config"
)

// Claims carried by a session token. The subject is the numeric account id.
type Claims struct {
	Username    string `json:"username"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider verifies and issues HS256 session tokens.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ ports.IdentityProvider = (*JWTProvider)(nil)

// NewJWTProvider builds a provider from config. now defaults to time.Now.
func NewJWTProvider(cfg config.AuthConfig, now func() time.Time) *JWTProvider {
	if now == nil {
		now = time.Now
	}
	return &JWTProvider{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer, now: now}
}

// Identify validates token and maps its claims to an identity.
func (p *JWTProvider) Identify(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Anonymous, domain.NewUnauthorizedError("missing token")
	}
	if len(p.secret) == 0 {
		return domain.Anonymous, domain.NewUnauthorizedError("token verification is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return domain.Anonymous, domain.NewUnauthorizedError(fmt.Sprintf("invalid token: %v", err))
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Anonymous, domain.NewUnauthorizedError("invalid token subject")
	}
	return domain.Identity{
		ID:          id,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		Role:        domain.ParseRole(claims.Role),
	}, nil
}

// Issue signs a token for who, valid for ttl.
func (p *JWTProvider) Issue(who domain.Identity, ttl time.Duration) (string, error) {
	if len(p.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := p.now()
	claims := Claims{
		Username:    who.Username,
		DisplayName: who.DisplayName,
		Role:        who.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(who.ID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
