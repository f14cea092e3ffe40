package domain

import (
	"strings"
	"time"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusDraft          SubmissionStatus = "draft"
	StatusWaitingPayment SubmissionStatus = "waiting_payment"
	StatusQueued         SubmissionStatus = "queued"
	StatusPlaying        SubmissionStatus = "playing"
	StatusDone           SubmissionStatus = "done"
	StatusDeleted        SubmissionStatus = "deleted"
	StatusFailed         SubmissionStatus = "failed"
)

// IsTerminal reports whether queue management may no longer touch the submission.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusDeleted || s == StatusDone
}

// CanActivate reports whether a submission in this status may become the active track.
// Evaluated submissions are final.
func (s SubmissionStatus) CanActivate() bool {
	return s != StatusDeleted && s != StatusFailed && s != StatusDone
}

// PaymentStatus tracks the paid-priority flow.
type PaymentStatus string

const (
	PaymentNone    PaymentStatus = "none"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Submission is one viewer-contributed track awaiting or undergoing rating.
type Submission struct {
	ID               int64
	Artist           string
	Title            string
	Priority         Priority
	Status           SubmissionStatus
	FileKey          string
	FileExt          string
	OriginalFilename string
	DurationSec      *int
	LinkedTrackID    *int64
	CreatedAt        time.Time
	PrioritySetAt    time.Time

	SubmitterID   *int64
	SubmitterName *string

	PaymentStatus   PaymentStatus
	PaymentProvider *string
	PaymentRef      *string
	PaymentAmount   *int
}

// DisplayName renders "artist — title", falling back to whichever is present.
func (s *Submission) DisplayName() string {
	artist := strings.TrimSpace(s.Artist)
	title := strings.TrimSpace(s.Title)
	switch {
	case artist != "" && title != "":
		return artist + " — " + title
	case title != "":
		return title
	case artist != "":
		return artist
	default:
		return UntitledTrackName
	}
}

// HasMetadata reports whether artist or title was provided.
func (s *Submission) HasMetadata() bool {
	return strings.TrimSpace(s.Artist) != "" || strings.TrimSpace(s.Title) != ""
}

// DurationMS returns the known duration in milliseconds, or 0 when unknown.
func (s *Submission) DurationMS() int64 {
	if s.DurationSec == nil || *s.DurationSec <= 0 {
		return 0
	}
	return int64(*s.DurationSec) * 1000
}

// SetPriority changes the priority tier and moves the FIFO anchor to now.
// Re-sending the current priority is a no-op and leaves the anchor untouched.
func (s *Submission) SetPriority(p Priority, now time.Time) bool {
	if s.Priority == p {
		return false
	}
	s.Priority = p
	s.PrioritySetAt = now
	return true
}

// ClearPayment resets every payment field.
func (s *Submission) ClearPayment() {
	s.PaymentStatus = PaymentNone
	s.PaymentProvider = nil
	s.PaymentRef = nil
	s.PaymentAmount = nil
}

// Track is a persisted, rated entity. It outlives the submission that spawned it.
type Track struct {
	ID           int64
	Name         string
	SubmissionID *int64
	IsDeleted    bool
	CreatedAt    time.Time
}

// Evaluation is one append-only (track, judge, criterion, score) record.
type Evaluation struct {
	ID           int64
	TrackID      int64
	JudgeName    string
	CriterionKey string
	Score        float64
	CreatedAt    time.Time
}

// Criterion is one scoring axis shown on the judges' panel.
type Criterion struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}
