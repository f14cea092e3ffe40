package repo

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// MemoryRepository implements ports.Store in process memory. It backs local
// runs without Postgres and the service tests.
type MemoryRepository struct {
	mu          sync.Mutex
	now         func() time.Time
	submissions map[int64]*domain.Submission
	tracks      map[int64]*domain.Track
	evaluations []domain.Evaluation
	nextSubID   int64
	nextTrackID int64
	nextEvalID  int64
}

var _ ports.Store = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty store. now defaults to time.Now.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		now:         now,
		submissions: make(map[int64]*domain.Submission),
		tracks:      make(map[int64]*domain.Track),
	}
}

func (r *MemoryRepository) Health(ctx context.Context) error {
	return ctx.Err()
}

// Submissions

func (r *MemoryRepository) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, domain.NewNotFoundError("submission")
	}
	c := *s
	return &c, nil
}

func (r *MemoryRepository) FindSubmissionsByStatus(ctx context.Context, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error) {
	return r.filter(func(s *domain.Submission) bool {
		return slices.Contains(statuses, s.Status)
	}, limit), nil
}

func (r *MemoryRepository) ListSubmissionsBySubmitter(ctx context.Context, submitterID int64, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error) {
	return r.filter(func(s *domain.Submission) bool {
		return s.SubmitterID != nil && *s.SubmitterID == submitterID && slices.Contains(statuses, s.Status)
	}, limit), nil
}

func (r *MemoryRepository) CountSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.submissions {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateSubmission(ctx context.Context, s *domain.Submission) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	c := *s
	c.ID = r.nextSubID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	if c.PrioritySetAt.IsZero() {
		c.PrioritySetAt = c.CreatedAt
	}
	if c.PaymentStatus == "" {
		c.PaymentStatus = domain.PaymentNone
	}
	r.submissions[c.ID] = &c
	out := c
	return &out, nil
}

func (r *MemoryRepository) UpdateSubmission(ctx context.Context, id int64, fn ports.SubmissionMutator) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.submissions[id]
	if !ok {
		return nil, domain.NewNotFoundError("submission")
	}
	work := *cur
	if err := fn(&work); err != nil {
		if errors.Is(err, ports.ErrNoChange) {
			out := *cur
			return &out, nil
		}
		return nil, err
	}
	work.ID = id
	*cur = work
	out := work
	return &out, nil
}

func (r *MemoryRepository) MarkPlaying(ctx context.Context, id int64) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[id]
	if !ok {
		return nil, domain.NewNotFoundError("submission")
	}
	if !sub.Status.CanActivate() {
		return nil, domain.NewInvalidStatusError(sub.Status)
	}
	for oid, other := range r.submissions {
		if oid != id && other.Status == domain.StatusPlaying {
			other.Status = domain.StatusQueued
		}
	}
	sub.Status = domain.StatusPlaying
	out := *sub
	return &out, nil
}

// filter returns matching rows in queue order, truncated to limit when positive.
func (r *MemoryRepository) filter(keep func(*domain.Submission) bool, limit int) []domain.Submission {
	r.mu.Lock()
	out := make([]domain.Submission, 0)
	for _, s := range r.submissions {
		if keep(s) {
			out = append(out, *s)
		}
	}
	r.mu.Unlock()

	out = domain.SortQueue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Tracks & evaluations

func (r *MemoryRepository) GetTrack(ctx context.Context, id int64) (*domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, domain.NewNotFoundError("track")
	}
	c := *t
	return &c, nil
}

func (r *MemoryRepository) ResolveTrackForSubmission(ctx context.Context, submissionID int64, name string) (*domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[submissionID]
	if !ok {
		return nil, domain.NewNotFoundError("submission")
	}
	if sub.LinkedTrackID != nil {
		if t, ok := r.tracks[*sub.LinkedTrackID]; ok {
			if name != "" {
				t.Name = name
			}
			c := *t
			return &c, nil
		}
	}
	t := r.createTrackLocked(name, &submissionID)
	sub.LinkedTrackID = &t.ID
	c := *t
	return &c, nil
}

func (r *MemoryRepository) createTrackLocked(name string, submissionID *int64) *domain.Track {
	r.nextTrackID++
	t := &domain.Track{
		ID:           r.nextTrackID,
		Name:         name,
		SubmissionID: submissionID,
		CreatedAt:    r.now().UTC(),
	}
	r.tracks[t.ID] = t
	return t
}

func (r *MemoryRepository) RecordEvaluation(ctx context.Context, rec ports.EvaluationRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sub *domain.Submission
	if rec.SubmissionID != nil {
		s, ok := r.submissions[*rec.SubmissionID]
		if !ok {
			return 0, domain.NewNotFoundError("submission")
		}
		sub = s
	}
	t, ok := r.tracks[rec.TrackID]
	switch {
	case rec.TrackID == 0:
		t = r.createTrackLocked(rec.TrackName, rec.SubmissionID)
	case !ok:
		return 0, domain.NewNotFoundError("track")
	}

	now := r.now().UTC()
	for _, row := range rec.Rows {
		r.nextEvalID++
		row.ID = r.nextEvalID
		row.TrackID = t.ID
		row.CreatedAt = now
		r.evaluations = append(r.evaluations, row)
	}
	if rec.TrackName != "" {
		t.Name = rec.TrackName
	}
	if sub != nil && sub.Status != domain.StatusDeleted && sub.Status != domain.StatusFailed {
		sub.LinkedTrackID = &t.ID
		if sub.Status == domain.StatusQueued || sub.Status == domain.StatusPlaying {
			sub.Status = domain.StatusDone
		}
	}
	return t.ID, nil
}

func (r *MemoryRepository) CountEvaluations(ctx context.Context, trackID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.evaluations {
		if e.TrackID == trackID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) TrackAverage(ctx context.Context, trackID int64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	var n int
	for _, e := range r.evaluations {
		if e.TrackID == trackID {
			sum += e.Score
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (r *MemoryRepository) ListTrackAverages(ctx context.Context) ([]ports.TrackAverage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for _, e := range r.evaluations {
		sums[e.TrackID] += e.Score
		counts[e.TrackID]++
	}
	out := make([]ports.TrackAverage, 0, len(sums))
	for id, sum := range sums {
		if t, ok := r.tracks[id]; !ok || t.IsDeleted {
			continue
		}
		out = append(out, ports.TrackAverage{TrackID: id, Average: sum / float64(counts[id])})
	}
	slices.SortFunc(out, func(a, b ports.TrackAverage) int { return cmp.Compare(a.TrackID, b.TrackID) })
	return out, nil
}

// SoftDeleteTrack hides a track from rankings.
func (r *MemoryRepository) SoftDeleteTrack(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tracks[id]; ok {
		t.IsDeleted = true
	}
}

// Evaluations returns a copy of every recorded row.
func (r *MemoryRepository) Evaluations() []domain.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.evaluations)
}
