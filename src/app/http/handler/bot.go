package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/dto"
	"trackrater/src/app/http/response"
	"trackrater/src/app/middleware"
	"trackrater/src/core/usecase"
)

// BotHandler is the private intake API used by the submission bot.
type BotHandler struct {
	submissionService *usecase.SubmissionService
}

func NewBotHandler(submissionService *usecase.SubmissionService) *BotHandler {
	return &BotHandler{submissionService: submissionService}
}

// Create stores a draft.
// POST /v1/bot/submissions
func (h *BotHandler) Create(c *gin.Context) {
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payload", middleware.GetRequestID(c))
		return
	}
	sub, err := h.submissionService.CreateDraft(c.Request.Context(), req.ToInput())
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.Created(c, dto.SubmissionCreatedResponse{SubmissionID: sub.ID})
}

// Metadata sets artist and title.
// POST /v1/bot/submissions/:id/metadata
func (h *BotHandler) Metadata(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.MetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payload", middleware.GetRequestID(c))
		return
	}
	if _, err := h.submissionService.SetMetadata(c.Request.Context(), id, req.Artist, req.Title); err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}

// EnqueueFree queues the submission in the free tier.
// POST /v1/bot/submissions/:id/enqueue_free
func (h *BotHandler) EnqueueFree(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	pos, err := h.submissionService.EnqueueFree(c.Request.Context(), id)
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.PositionResponse{OK: true, Position: pos})
}

// WaitingPayment records the chosen paid tier.
// POST /v1/bot/submissions/:id/waiting_payment
func (h *BotHandler) WaitingPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.WaitingPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payload", middleware.GetRequestID(c))
		return
	}
	if _, err := h.submissionService.AwaitPayment(c.Request.Context(), id, req.ToInput()); err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}

// MarkPaid confirms a payment.
// POST /v1/bot/submissions/:id/mark_paid
func (h *BotHandler) MarkPaid(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payload", middleware.GetRequestID(c))
		return
	}
	pos, err := h.submissionService.MarkPaid(c.Request.Context(), id, req.ToInput())
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.PositionResponse{OK: true, Position: pos})
}

// Cancel withdraws a draft or unpaid submission.
// POST /v1/bot/submissions/:id/cancel
func (h *BotHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.submissionService.Cancel(c.Request.Context(), id); err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}

// MyQueue lists one submitter's queued and playing items. A malformed id
// yields an empty list, as the bot expects.
// GET /v1/bot/my_queue?tg_user_id=
func (h *BotHandler) MyQueue(c *gin.Context) {
	submitter, err := strconv.ParseInt(c.Query("tg_user_id"), 10, 64)
	if err != nil {
		submitter = 0
	}
	subs, err := h.submissionService.MySubmissions(c.Request.Context(), submitter)
	if err != nil {
		response.FromDomainError(c, err, middleware.GetRequestID(c))
		return
	}
	items := make([]dto.SubmissionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, dto.SubmissionResponse{}.FromDomain(&subs[i]))
	}
	response.OK(c, items)
}
