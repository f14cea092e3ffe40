package domain

import (
	"cmp"
	"slices"
)

// QueueEligibleStatuses are ranked by position lookups (the submitter's view).
var QueueEligibleStatuses = []SubmissionStatus{StatusQueued, StatusWaitingPayment, StatusDraft}

// QueueVisibleStatuses are shown on the public and moderation queue.
var QueueVisibleStatuses = []SubmissionStatus{StatusQueued}

// CompareQueue orders submissions by (priority DESC, priority_set_at ASC,
// created_at ASC, id ASC). The FIFO anchor is priority_set_at, never created_at.
func CompareQueue(a, b *Submission) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := a.PrioritySetAt.Compare(b.PrioritySetAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortQueue returns a sorted copy; the input is left untouched.
func SortQueue(subs []Submission) []Submission {
	out := slices.Clone(subs)
	slices.SortFunc(out, func(a, b Submission) int { return CompareQueue(&a, &b) })
	return out
}

// PositionOf returns the 1-based rank of id within subs.
func PositionOf(subs []Submission, id int64) (int, bool) {
	for i, s := range SortQueue(subs) {
		if s.ID == id {
			return i + 1, true
		}
	}
	return 0, false
}

// QueueEntry is a submission annotated with its queue position.
// Position is nil for entries that are listed but not in queued status.
type QueueEntry struct {
	Submission Submission
	Position   *int
}

// RankQueue orders subs and truncates to limit (limit <= 0 keeps everything).
// Only queued items advance the position counter.
func RankQueue(subs []Submission, limit int) []QueueEntry {
	sorted := SortQueue(subs)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]QueueEntry, 0, len(sorted))
	pos := 0
	for _, s := range sorted {
		e := QueueEntry{Submission: s}
		if s.Status == StatusQueued {
			pos++
			p := pos
			e.Position = &p
		}
		out = append(out, e)
	}
	return out
}
