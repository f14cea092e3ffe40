package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackrater/src/core/domain"
	"trackrater/src/infra/logger"
)

type tokenTable map[string]domain.Identity

func (t tokenTable) Identify(_ context.Context, token string) (domain.Identity, error) {
	if who, ok := t[token]; ok {
		return who, nil
	}
	return domain.Identity{}, errors.New("unknown token")
}

func identityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	provider := tokenTable{
		"judge-token": {ID: 2, Username: "anna", Role: domain.RoleJudge},
		"admin-token": {ID: 1, Username: "boss", Role: domain.RoleAdmin},
	}
	r.GET("/who", Identity(provider, logger.Discard()), func(c *gin.Context) {
		who := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"id": who.ID, "role": who.Role.String()})
	})
	return r
}

func TestIdentitySources(t *testing.T) {
	r := identityRouter()
	cases := []struct {
		name  string
		setup func(*http.Request)
		want  string
	}{
		{"anonymous", func(*http.Request) {}, `{"id":0,"role":"none"}`},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer judge-token") }, `{"id":2,"role":"judge"}`},
		{"lowercase scheme", func(req *http.Request) { req.Header.Set("Authorization", "bearer admin-token") }, `{"id":1,"role":"admin"}`},
		{"query", func(req *http.Request) {
			q := req.URL.Query()
			q.Set("token", "admin-token")
			req.URL.RawQuery = q.Encode()
		}, `{"id":1,"role":"admin"}`},
		{"cookie", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "judge-token"})
		}, `{"id":2,"role":"judge"}`},
		{"invalid token stays anonymous", func(req *http.Request) { req.Header.Set("Authorization", "Bearer forged") }, `{"id":0,"role":"none"}`},
		{"header wins over cookie", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer admin-token")
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "judge-token"})
		}, `{"id":1,"role":"admin"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestGetIdentityWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, domain.Anonymous, GetIdentity(c))
	c.Set(IdentityKey, "not an identity")
	assert.Equal(t, domain.Anonymous, GetIdentity(c))
}

func TestRedactQuery(t *testing.T) {
	assert.Equal(t, "token=REDACTED&x=1", redactQuery("token=abc&x=1"))
	assert.Equal(t, "access_token=abc", redactQuery("access_token=abc"))
	assert.Equal(t, "limit=5", redactQuery("limit=5"))
}
