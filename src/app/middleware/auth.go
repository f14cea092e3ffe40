package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/response"
	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

const (
	// IdentityKey is the context key holding the caller's domain.Identity.
	IdentityKey = "identity"

	// BotTokenHeader carries the shared secret of the submission bot.
	BotTokenHeader = "X-Bot-Token"

	// SessionCookie may carry the access token for browser clients.
	SessionCookie = "trackrater_token"
)

// Identity resolves the caller from a bearer token, a ?token= query
// parameter (websocket clients cannot set headers) or the session cookie.
// A missing or invalid token leaves the caller anonymous; the core decides
// what anonymous callers may do.
func Identity(provider ports.IdentityProvider, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := domain.Anonymous
		if token := tokenFrom(c); token != "" && provider != nil {
			id, err := provider.Identify(c.Request.Context(), token)
			if err != nil {
				log.Debug("ignoring invalid access token", "request_id", GetRequestID(c), "error", err)
			} else {
				who = id
			}
		}
		c.Set(IdentityKey, who)
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if q := c.Query("token"); q != "" {
		return q
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// GetIdentity returns the identity stored by Identity, or Anonymous.
func GetIdentity(c *gin.Context) domain.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if who, ok := v.(domain.Identity); ok {
			return who
		}
	}
	return domain.Anonymous
}

// BotToken guards the intake API with a shared secret. An empty secret
// disables the API.
func BotToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := GetRequestID(c)
		if secret == "" {
			response.ServiceUnavailable(c, "bot api is disabled", requestID)
			return
		}
		got := c.GetHeader(BotTokenHeader)
		if got == "" {
			response.Unauthorized(c, "missing "+BotTokenHeader+" header", requestID)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Forbidden(c, "invalid bot token", requestID)
			return
		}
		c.Next()
	}
}
