package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackrater/src/app/middleware"
	"trackrater/src/core/domain"
)

// WebsocketServer accepts upgraded connections for an identity.
type WebsocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, who domain.Identity) error
}

// WSHandler upgrades /ws to the real-time gateway.
type WSHandler struct {
	hub WebsocketServer
	log *slog.Logger
}

func NewWSHandler(hub WebsocketServer, log *slog.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: log}
}

// Connect blocks for the lifetime of the websocket.
// GET /ws
func (h *WSHandler) Connect(c *gin.Context) {
	who := middleware.GetIdentity(c)
	if err := h.hub.Serve(c.Writer, c.Request, who); err != nil {
		h.log.Debug("websocket upgrade failed", "request_id", middleware.GetRequestID(c), "error", err)
	}
}
