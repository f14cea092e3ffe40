package dto

import (
	"time"

	"trackrater/src/core/domain"
	"trackrater/src/core/usecase"
)

// CreateSubmissionRequest registers an upload the bot already stored.
type CreateSubmissionRequest struct {
	TgUserID         int64  `json:"tg_user_id" binding:"required"`
	TgUsername       string `json:"tg_username"`
	FileKey          string `json:"file_key" binding:"required"`
	OriginalExt      string `json:"original_ext" binding:"required"`
	OriginalFilename string `json:"original_filename"`
	DurationSec      *int   `json:"duration_sec"`
}

func (r CreateSubmissionRequest) ToInput() usecase.DraftInput {
	return usecase.DraftInput{
		SubmitterID:      r.TgUserID,
		SubmitterName:    r.TgUsername,
		FileKey:          r.FileKey,
		FileExt:          r.OriginalExt,
		OriginalFilename: r.OriginalFilename,
		DurationSec:      r.DurationSec,
	}
}

// MetadataRequest sets artist and title.
type MetadataRequest struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// WaitingPaymentRequest selects a paid tier. Ref is the legacy name of ProviderRef.
type WaitingPaymentRequest struct {
	Priority    int    `json:"priority" binding:"required"`
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
	Ref         string `json:"ref"`
}

func (r WaitingPaymentRequest) ToInput() usecase.PaymentIntent {
	ref := r.ProviderRef
	if ref == "" {
		ref = r.Ref
	}
	return usecase.PaymentIntent{Priority: r.Priority, Provider: r.Provider, ProviderRef: ref}
}

// MarkPaidRequest confirms a payment.
type MarkPaidRequest struct {
	Provider    string `json:"provider" binding:"required"`
	ProviderRef string `json:"provider_ref" binding:"required"`
	Amount      int    `json:"amount"`
}

func (r MarkPaidRequest) ToInput() usecase.PaymentReceipt {
	return usecase.PaymentReceipt{Provider: r.Provider, ProviderRef: r.ProviderRef, Amount: r.Amount}
}

// SubmissionCreatedResponse answers CreateSubmissionRequest.
type SubmissionCreatedResponse struct {
	SubmissionID int64 `json:"submission_id"`
}

// PositionResponse reports a queue position after an intake step.
type PositionResponse struct {
	OK       bool `json:"ok"`
	Position int  `json:"position"`
}

// OKResponse is the bare acknowledgement.
type OKResponse struct {
	OK bool `json:"ok"`
}

// SubmissionResponse is the bot's view of one submission.
type SubmissionResponse struct {
	ID            int64     `json:"id"`
	Artist        string    `json:"artist"`
	Title         string    `json:"title"`
	Display       string    `json:"display"`
	Priority      int       `json:"priority"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (SubmissionResponse) FromDomain(s *domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:            s.ID,
		Artist:        s.Artist,
		Title:         s.Title,
		Display:       s.DisplayName(),
		Priority:      int(s.Priority),
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		CreatedAt:     s.CreatedAt,
	}
}

// QueuePositionResponse answers GET /v1/queue/:id/position.
type QueuePositionResponse struct {
	SubmissionID int64 `json:"submission_id"`
	Position     int   `json:"position"`
}
