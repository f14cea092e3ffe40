package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody caps the request/response bodies copied into the log line.
const maxLoggedBody = 2048

// Logging emits one line per request. Bodies are captured for JSON API calls
// only; websocket upgrades and the metrics scrape are logged without them.
func Logging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		capture := shouldCapture(c)

		var reqBodyBytes []byte
		var rec *responseCapture
		if capture {
			if c.Request.Body != nil {
				reqBodyBytes, _ = io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
			}
			rec = &responseCapture{ResponseWriter: c.Writer}
			c.Writer = rec
		}

		c.Next()

		api := path
		if query != "" {
			api = api + "?" + redactQuery(query)
		}
		status := c.Writer.Status()
		attrs := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"api", api,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if capture {
			attrs = append(attrs,
				"request", truncate(string(reqBodyBytes)),
				"response", truncate(rec.body.String()),
			)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			attrs = append(attrs, "errors", errs.String())
		}

		switch {
		case status >= 500:
			log.Error("http request", attrs...)
		case status >= 400:
			log.Warn("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
	}
}

func shouldCapture(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return false
	}
	return c.Request.URL.Path != "/metrics"
}

// redactQuery hides access tokens passed as query parameters.
func redactQuery(q string) string {
	if !strings.Contains(q, "token=") {
		return q
	}
	parts := strings.Split(q, "&")
	for i, p := range parts {
		if k, _, ok := strings.Cut(p, "="); ok && k == "token" {
			parts[i] = "token=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "..."
}

// responseCapture captures response body while delegating to original writer.
type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.body.Len() < maxLoggedBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) WriteString(s string) (int, error) {
	if r.body.Len() < maxLoggedBody {
		r.body.WriteString(s)
	}
	return r.ResponseWriter.WriteString(s)
}
