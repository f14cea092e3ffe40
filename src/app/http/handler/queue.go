package handler

import (
	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/dto"
	"trackrater/src/app/http/response"
	"trackrater/src/app/middleware"
	"trackrater/src/core/usecase"
)

// QueueHandler serves the public queue.
type QueueHandler struct {
	queueService *usecase.QueueService
}

func NewQueueHandler(queueService *usecase.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

// List returns the queue_state payload.
// GET /v1/queue?limit=
func (h *QueueHandler) List(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	view, err := h.queueService.ListQueue(c.Request.Context(), limit)
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, view)
}

// Position returns the 1-based position of a queued submission.
// GET /v1/queue/:id/position
func (h *QueueHandler) Position(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	pos, err := h.queueService.PositionOf(c.Request.Context(), id)
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.QueuePositionResponse{SubmissionID: id, Position: pos})
}
