package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"trackrater/src/infra/metrics"
)

// Metrics records request count and latency labelled by route template,
// so path parameters do not explode label cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
