package usecase

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// SubmissionService is the intake flow driven by the submission bot and the
// payment webhooks. Every mutation pushes a fresh queue_state.
type SubmissionService struct {
	store ports.SubmissionRepository
	queue *QueueService
	gw    *Gateway
	now   func() time.Time
	log   *slog.Logger
}

func NewSubmissionService(store ports.SubmissionRepository, queue *QueueService, gw *Gateway, now func() time.Time, log *slog.Logger) *SubmissionService {
	if now == nil {
		now = time.Now
	}
	return &SubmissionService{store: store, queue: queue, gw: gw, now: now, log: log}
}

// DraftInput describes a freshly staged upload.
type DraftInput struct {
	SubmitterID      int64
	SubmitterName    string
	FileKey          string
	FileExt          string
	OriginalFilename string
	DurationSec      *int
}

// PaymentIntent selects a paid tier before the payment lands.
type PaymentIntent struct {
	Priority    int
	Provider    string
	ProviderRef string
}

// PaymentReceipt confirms a payment.
type PaymentReceipt struct {
	Provider    string
	ProviderRef string
	Amount      int
}

// CreateDraft stores a new draft submission. The FIFO anchor starts at creation.
func (s *SubmissionService) CreateDraft(ctx context.Context, in DraftInput) (*domain.Submission, error) {
	if in.SubmitterID <= 0 {
		return nil, domain.NewValidationError("tg_user_id", "submitter id is required")
	}
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(in.FileExt)), ".")
	if !slices.Contains(domain.AllowedSubmissionExts, ext) {
		return nil, domain.NewValidationError("original_ext", "unsupported file extension")
	}
	if strings.TrimSpace(in.FileKey) == "" {
		return nil, domain.NewValidationError("file_key", "file key is required")
	}

	now := s.now().UTC()
	submitter := in.SubmitterID
	sub := &domain.Submission{
		Priority:         domain.PriorityFree,
		Status:           domain.StatusDraft,
		FileKey:          in.FileKey,
		FileExt:          ext,
		OriginalFilename: in.OriginalFilename,
		DurationSec:      in.DurationSec,
		CreatedAt:        now,
		PrioritySetAt:    now,
		SubmitterID:      &submitter,
		PaymentStatus:    domain.PaymentNone,
	}
	if name := strings.TrimSpace(in.SubmitterName); name != "" {
		sub.SubmitterName = &name
	}
	created, err := s.store.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.log.Info("draft submission created", "submission_id", created.ID, "submitter_id", submitter)
	return created, nil
}

// SetMetadata fills artist and title. Blank fields keep their previous value.
func (s *SubmissionService) SetMetadata(ctx context.Context, id int64, artist, title string) (*domain.Submission, error) {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if artist == "" && title == "" {
		return nil, domain.NewValidationError("artist", "artist or title required")
	}
	sub, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return domain.NewInvalidStatusError(sub.Status)
		}
		if artist != "" {
			sub.Artist = artist
		}
		if title != "" {
			sub.Title = title
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.gw.QueueState(ctx)
	return sub, nil
}

// EnqueueFree puts the submission into the free tier and returns its position.
func (s *SubmissionService) EnqueueFree(ctx context.Context, id int64) (int, error) {
	now := s.now().UTC()
	_, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return domain.NewInvalidStatusError(sub.Status)
		}
		if !sub.HasMetadata() {
			return domain.NewValidationError("artist", "missing metadata")
		}
		sub.SetPriority(domain.PriorityFree, now)
		if sub.Status != domain.StatusPlaying {
			sub.Status = domain.StatusQueued
		}
		sub.ClearPayment()
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("submission queued", "submission_id", id, "priority", 0)
	s.gw.QueueState(ctx)
	return s.queue.PositionOf(ctx, id)
}

// AwaitPayment records the chosen paid tier. The priority itself changes only
// once the payment is confirmed.
func (s *SubmissionService) AwaitPayment(ctx context.Context, id int64, in PaymentIntent) (*domain.Submission, error) {
	p, err := domain.ParsePaidPriority(in.Priority)
	if err != nil {
		return nil, err
	}
	provider := strings.TrimSpace(in.Provider)
	if provider != "" && !domain.KnownPaymentProvider(provider) {
		return nil, domain.NewValidationError("provider", "unknown payment provider")
	}
	ref := strings.TrimSpace(in.ProviderRef)

	sub, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return domain.NewInvalidStatusError(sub.Status)
		}
		if !sub.HasMetadata() {
			return domain.NewValidationError("artist", "missing metadata")
		}
		amount := int(p)
		sub.PaymentStatus = domain.PaymentPending
		sub.PaymentAmount = &amount
		sub.PaymentProvider = optional(provider)
		sub.PaymentRef = optional(ref)
		if sub.Status != domain.StatusQueued && sub.Status != domain.StatusPlaying {
			sub.Status = domain.StatusWaitingPayment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("submission awaiting payment", "submission_id", id, "priority", int(p))
	s.gw.QueueState(ctx)
	return sub, nil
}

// MarkPaid confirms a payment and promotes the submission to the paid tier.
// Replaying the same provider reference is idempotent.
func (s *SubmissionService) MarkPaid(ctx context.Context, id int64, in PaymentReceipt) (int, error) {
	provider := strings.TrimSpace(in.Provider)
	ref := strings.TrimSpace(in.ProviderRef)
	if !domain.KnownPaymentProvider(provider) {
		return 0, domain.NewValidationError("provider", "unknown payment provider")
	}
	if ref == "" {
		return 0, domain.NewValidationError("provider_ref", "provider_ref required")
	}

	now := s.now().UTC()
	replay := false
	_, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return domain.NewInvalidStatusError(sub.Status)
		}
		if sub.PaymentStatus == domain.PaymentPaid {
			if sub.PaymentRef != nil && *sub.PaymentRef == ref {
				replay = true
				return ports.ErrNoChange
			}
			return domain.NewConflictError("already paid")
		}
		required := int(sub.Priority)
		if sub.PaymentAmount != nil && *sub.PaymentAmount > 0 {
			required = *sub.PaymentAmount
		}
		tier, err := domain.ParsePaidPriority(required)
		if err != nil {
			return domain.NewConflictError("no paid tier selected")
		}
		if in.Amount < required {
			return domain.NewValidationError("amount", "amount too low")
		}
		sub.SetPriority(tier, now)
		if sub.Status != domain.StatusPlaying {
			sub.Status = domain.StatusQueued
		}
		sub.PaymentStatus = domain.PaymentPaid
		sub.PaymentProvider = &provider
		sub.PaymentRef = &ref
		sub.PaymentAmount = &required
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !replay {
		s.log.Info("submission paid", "submission_id", id, "provider", provider)
		s.gw.QueueState(ctx)
	}
	return s.queue.PositionOf(ctx, id)
}

// Cancel withdraws a draft or unpaid submission. Payment fields are cleared
// in every non-terminal status; a missing submission is not an error.
func (s *SubmissionService) Cancel(ctx context.Context, id int64) error {
	_, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return ports.ErrNoChange
		}
		if sub.Status == domain.StatusDraft || sub.Status == domain.StatusWaitingPayment {
			sub.Status = domain.StatusDeleted
		}
		sub.ClearPayment()
		return nil
	})
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	s.log.Info("submission cancelled", "submission_id", id)
	s.gw.QueueState(ctx)
	return nil
}

// MySubmissions lists a submitter's queued and playing items in queue order.
func (s *SubmissionService) MySubmissions(ctx context.Context, submitterID int64) ([]domain.Submission, error) {
	if submitterID <= 0 {
		return []domain.Submission{}, nil
	}
	return s.store.ListSubmissionsBySubmitter(ctx, submitterID,
		[]domain.SubmissionStatus{domain.StatusQueued, domain.StatusPlaying}, domain.MySubmissionsLimit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
