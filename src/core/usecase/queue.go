package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// QueueService answers queue queries and runs the moderation commands.
type QueueService struct {
	store ports.SubmissionRepository
	live  *LiveState
	gw    *Gateway
	now   func() time.Time
	limit int
	log   *slog.Logger

	// reads coalesces concurrent public queue reads.
	reads singleflight.Group
}

func NewQueueService(store ports.SubmissionRepository, live *LiveState, gw *Gateway, now func() time.Time, limit int, log *slog.Logger) *QueueService {
	if now == nil {
		now = time.Now
	}
	if limit <= 0 {
		limit = domain.DefaultQueueViewLimit
	}
	return &QueueService{store: store, live: live, gw: gw, now: now, limit: limit, log: log}
}

// PositionOf returns the 1-based position of id among all queue-eligible
// submissions, or a not-found error when id is not eligible.
func (s *QueueService) PositionOf(ctx context.Context, id int64) (int, error) {
	subs, err := s.store.FindSubmissionsByStatus(ctx, domain.QueueEligibleStatuses, 0)
	if err != nil {
		return 0, err
	}
	pos, ok := domain.PositionOf(subs, id)
	if !ok {
		return 0, domain.NewNotFoundError("submission is not in the queue")
	}
	return pos, nil
}

// ListQueue returns the public queue view truncated to limit. Concurrent
// callers asking for the same limit share one store read. The view is
// read-only for every caller.
func (s *QueueService) ListQueue(ctx context.Context, limit int) (*QueueStateView, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	v, err, _ := s.reads.Do("queue:"+strconv.Itoa(limit), func() (any, error) {
		return buildQueueView(context.WithoutCancel(ctx), s.store, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.(*QueueStateView), nil
}

// SetPriority moves a submission to another tier. The FIFO anchor moves only
// when the tier actually changes; re-sending the current tier reports false.
func (s *QueueService) SetPriority(ctx context.Context, caller domain.Identity, id int64, p domain.Priority) (bool, error) {
	if !caller.Role.CanAccessPanel() {
		return false, domain.NewForbiddenError("panel access required")
	}
	if !p.Valid() {
		return false, domain.NewValidationError("priority", "unknown priority tier")
	}

	changed := false
	_, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status.IsTerminal() {
			return domain.NewInvalidStatusError(sub.Status)
		}
		if !sub.SetPriority(p, s.now()) {
			return ports.ErrNoChange
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Info("submission priority changed", "submission_id", id, "priority", int(p), "by", caller.ID)
		s.gw.QueueState(ctx)
	}
	return changed, nil
}

// Delete marks a submission deleted. Deleting the active submission clears
// the live state as well.
func (s *QueueService) Delete(ctx context.Context, caller domain.Identity, id int64) error {
	if !caller.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	changed := false
	_, err := s.store.UpdateSubmission(ctx, id, func(sub *domain.Submission) error {
		if sub.Status == domain.StatusDeleted {
			return ports.ErrNoChange
		}
		sub.Status = domain.StatusDeleted
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}
	s.log.Info("submission deleted", "submission_id", id, "by", caller.ID)

	if s.live.ClearActiveIf(id, true) {
		s.gw.Emit(ctx, ports.RoomAll, EventTrackNameChanged, trackNamePayload(""))
	}
	s.gw.PlaybackState(ctx)
	s.gw.QueueState(ctx)
	return nil
}

func trackNamePayload(name string) map[string]string {
	return map[string]string{"track_name": name}
}
