// Package ports defines interfaces (ports) that connect core domain to infrastructure.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern.
//
// Ports are defined here in the core layer, while implementations (adapters)
// live in src/infra and src/app. This ensures the core has no dependency on infrastructure.
package ports

import (
	"context"
	"errors"

	"trackrater/src/core/domain"
)

// ErrNoChange may be returned from an UpdateSubmission mutator to abandon the
// update without error. The repository then returns the unchanged row.
var ErrNoChange = errors.New("no change")

// Repository is the base interface for all repositories.
type Repository interface {
	// Health checks if the underlying storage is reachable.
	Health(ctx context.Context) error
}

// SubmissionMutator edits a locked submission row in place.
type SubmissionMutator func(s *domain.Submission) error

// SubmissionRepository persists submissions. Every read is a fresh snapshot.
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, id int64) (*domain.Submission, error)

	// FindSubmissionsByStatus returns submissions in queue order. limit <= 0 means no limit.
	FindSubmissionsByStatus(ctx context.Context, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error)

	// ListSubmissionsBySubmitter returns one submitter's rows in queue order.
	ListSubmissionsBySubmitter(ctx context.Context, submitterID int64, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error)

	CountSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) (int, error)

	CreateSubmission(ctx context.Context, s *domain.Submission) (*domain.Submission, error)

	// UpdateSubmission locks the row, applies fn and writes it back in one
	// transaction. An error from fn rolls back; ErrNoChange is not reported.
	UpdateSubmission(ctx context.Context, id int64, fn SubmissionMutator) (*domain.Submission, error)

	// MarkPlaying moves id to playing and returns every other playing
	// submission to queued, atomically.
	MarkPlaying(ctx context.Context, id int64) (*domain.Submission, error)
}

// TrackAverage is a track's mean evaluation score.
type TrackAverage struct {
	TrackID int64
	Average float64
}

// EvaluationRecord is everything persisted by one evaluate call. A zero
// TrackID creates a new track named TrackName in the same transaction.
type EvaluationRecord struct {
	TrackID      int64
	TrackName    string
	SubmissionID *int64
	Rows         []domain.Evaluation
}

// TrackRepository persists rated tracks and their evaluations.
type TrackRepository interface {
	GetTrack(ctx context.Context, id int64) (*domain.Track, error)

	// ResolveTrackForSubmission returns the track linked to the submission,
	// creating and linking one when none exists. The name is kept in sync.
	ResolveTrackForSubmission(ctx context.Context, submissionID int64, name string) (*domain.Track, error)

	// RecordEvaluation inserts all rows, syncs the track name and, when the
	// track came from a submission, links it and marks it done, in one
	// transaction. It returns the evaluated track's id.
	RecordEvaluation(ctx context.Context, rec EvaluationRecord) (int64, error)

	// CountEvaluations is the number of evaluation rows recorded for a track.
	CountEvaluations(ctx context.Context, trackID int64) (int, error)

	// TrackAverage is the mean of all evaluation rows for a track.
	TrackAverage(ctx context.Context, trackID int64) (float64, error)

	// ListTrackAverages returns the averages of every non-deleted evaluated track.
	ListTrackAverages(ctx context.Context) ([]TrackAverage, error)
}

// Store is the composite persistence port consumed by the core.
type Store interface {
	Repository
	SubmissionRepository
	TrackRepository
}
