package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackrater/src/core/domain"
	"trackrater/src/infra/config"
)

func fixedNow() time.Time { return time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC) }

func TestIssueAndIdentify(t *testing.T) {
	p := NewJWTProvider(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "trackrater"}, fixedNow)
	who := domain.Identity{ID: 42, Username: "dj", DisplayName: "DJ Mike", Role: domain.RoleJudge}

	token, err := p.Issue(who, time.Hour)
	require.NoError(t, err)

	got, err := p.Identify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, who, got)
}

func TestIdentifyRejects(t *testing.T) {
	p := NewJWTProvider(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "trackrater"}, fixedNow)
	who := domain.Identity{ID: 7, Username: "admin", Role: domain.RoleAdmin}

	expired, err := p.Issue(who, -time.Minute)
	require.NoError(t, err)

	other := NewJWTProvider(config.AuthConfig{JWTSecret: "other", JWTIssuer: "trackrater"}, fixedNow)
	foreign, err := other.Issue(who, time.Hour)
	require.NoError(t, err)

	wrongIssuer := NewJWTProvider(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "elsewhere"}, fixedNow)
	misissued, err := wrongIssuer.Issue(who, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": misissued,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := p.Identify(context.Background(), token)
			require.Error(t, err)
			assert.True(t, domain.IsUnauthorized(err))
			assert.False(t, got.IsAuthenticated())
		})
	}
}

func TestIdentifyWithoutSecret(t *testing.T) {
	p := NewJWTProvider(config.AuthConfig{}, fixedNow)
	_, err := p.Identify(context.Background(), "abc")
	assert.True(t, domain.IsUnauthorized(err))

	_, err = p.Issue(domain.Identity{ID: 1}, time.Hour)
	assert.Error(t, err)
}
