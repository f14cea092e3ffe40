package handler

import (
	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/response"
	"trackrater/src/app/middleware"
	"trackrater/src/core/usecase"
)

// LiveHandler exposes read-only snapshots of the live session for pages
// that poll instead of holding a websocket.
type LiveHandler struct {
	playbackService *usecase.PlaybackService
	ratingService   *usecase.RatingService
}

func NewLiveHandler(playbackService *usecase.PlaybackService, ratingService *usecase.RatingService) *LiveHandler {
	return &LiveHandler{playbackService: playbackService, ratingService: ratingService}
}

// Playback returns the playback_state payload.
// GET /v1/playback
func (h *LiveHandler) Playback(c *gin.Context) {
	view, err := h.playbackService.State(c.Request.Context())
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, view)
}

// RatingState returns the initial_state payload.
// GET /v1/rating/state
func (h *LiveHandler) RatingState(c *gin.Context) {
	response.OK(c, h.ratingService.State())
}
