package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/response"
	"trackrater/src/app/middleware"
)

// parseIDParam reads a positive int64 path parameter.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, name, "invalid "+name, middleware.GetRequestID(c))
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ValidationError(c, name, "invalid "+name, middleware.GetRequestID(c))
		return 0, false
	}
	return v, true
}
