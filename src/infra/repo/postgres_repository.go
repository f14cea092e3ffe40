package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
	"trackrater/src/infra/db"
)

// PostgresRepository implements ports.Store using pgx.
type PostgresRepository struct {
	pg   *db.Postgres
	pool *pgxpool.Pool
	sql  sq.StatementBuilderType
	log  *slog.Logger
}

var _ ports.Store = (*PostgresRepository)(nil)

// NewPostgresRepository constructs a repository backed by Postgres.
func NewPostgresRepository(pg *db.Postgres, log *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		pg:   pg,
		pool: pg.Pool,
		sql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log:  log,
	}
}

func (r *PostgresRepository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var submissionColumns = []string{
	"id", "artist", "title", "priority", "status", "file_key", "file_ext", "original_filename",
	"duration_sec", "linked_track_id", "created_at", "priority_set_at",
	"submitter_id", "submitter_name",
	"payment_status", "payment_provider", "payment_ref", "payment_amount",
}

const submissionSelect = `
	SELECT id, artist, title, priority, status, file_key, file_ext, original_filename,
	       duration_sec, linked_track_id, created_at, priority_set_at,
	       submitter_id, submitter_name,
	       payment_status, payment_provider, payment_ref, payment_amount
	FROM track_submissions
`

const submissionReturning = `
	RETURNING id, artist, title, priority, status, file_key, file_ext, original_filename,
	          duration_sec, linked_track_id, created_at, priority_set_at,
	          submitter_id, submitter_name,
	          payment_status, payment_provider, payment_ref, payment_amount
`

// queueOrder is the total order of the queue: priority tier, FIFO anchor,
// creation time, id.
var queueOrder = []string{"priority DESC", "priority_set_at ASC", "created_at ASC", "id ASC"}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		s        domain.Submission
		priority int
		status   string
		payment  string
	)
	err := row.Scan(
		&s.ID, &s.Artist, &s.Title, &priority, &status, &s.FileKey, &s.FileExt, &s.OriginalFilename,
		&s.DurationSec, &s.LinkedTrackID, &s.CreatedAt, &s.PrioritySetAt,
		&s.SubmitterID, &s.SubmitterName,
		&payment, &s.PaymentProvider, &s.PaymentRef, &s.PaymentAmount,
	)
	if err != nil {
		return nil, err
	}
	s.Priority = domain.Priority(priority)
	s.Status = domain.SubmissionStatus(status)
	s.PaymentStatus = domain.PaymentStatus(payment)
	return &s, nil
}

func notFound(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError(resource)
	}
	return err
}

func statusStrings(statuses []domain.SubmissionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Submissions

func (r *PostgresRepository) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx, submissionSelect+" WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "submission")
	}
	return s, nil
}

func (r *PostgresRepository) FindSubmissionsByStatus(ctx context.Context, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error) {
	q := r.sql.Select(submissionColumns...).
		From("track_submissions").
		Where(sq.Eq{"status": statusStrings(statuses)}).
		OrderBy(queueOrder...)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.querySubmissions(ctx, q)
}

func (r *PostgresRepository) ListSubmissionsBySubmitter(ctx context.Context, submitterID int64, statuses []domain.SubmissionStatus, limit int) ([]domain.Submission, error) {
	q := r.sql.Select(submissionColumns...).
		From("track_submissions").
		Where(sq.Eq{"submitter_id": submitterID, "status": statusStrings(statuses)}).
		OrderBy(queueOrder...)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.querySubmissions(ctx, q)
}

func (r *PostgresRepository) querySubmissions(ctx context.Context, q sq.SelectBuilder) ([]domain.Submission, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build submissions query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]domain.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (r *PostgresRepository) CountSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM track_submissions WHERE status = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepository) CreateSubmission(ctx context.Context, s *domain.Submission) (*domain.Submission, error) {
	q := r.sql.Insert("track_submissions").
		Columns(
			"artist", "title", "priority", "status", "file_key", "file_ext", "original_filename",
			"duration_sec", "created_at", "priority_set_at", "submitter_id", "submitter_name",
			"payment_status", "payment_provider", "payment_ref", "payment_amount",
		).
		Values(
			s.Artist, s.Title, int(s.Priority), string(s.Status), s.FileKey, s.FileExt, s.OriginalFilename,
			s.DurationSec, s.CreatedAt, s.PrioritySetAt, s.SubmitterID, s.SubmitterName,
			string(s.PaymentStatus), s.PaymentProvider, s.PaymentRef, s.PaymentAmount,
		).
		Suffix(submissionReturning)
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	return scanSubmission(r.pool.QueryRow(ctx, query, args...))
}

func (r *PostgresRepository) UpdateSubmission(ctx context.Context, id int64, fn ports.SubmissionMutator) (*domain.Submission, error) {
	var out *domain.Submission
	err := r.pg.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanSubmission(tx.QueryRow(ctx, submissionSelect+" WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return notFound(err, "submission")
		}
		work := *cur
		if err := fn(&work); err != nil {
			if errors.Is(err, ports.ErrNoChange) {
				out = cur
				return nil
			}
			return err
		}

		const q = `
			UPDATE track_submissions
			SET artist = $2, title = $3, priority = $4, status = $5, duration_sec = $6,
			    linked_track_id = $7, priority_set_at = $8,
			    payment_status = $9, payment_provider = $10, payment_ref = $11, payment_amount = $12
			WHERE id = $1
		` + submissionReturning
		out, err = scanSubmission(tx.QueryRow(ctx, q,
			id, work.Artist, work.Title, int(work.Priority), string(work.Status), work.DurationSec,
			work.LinkedTrackID, work.PrioritySetAt,
			string(work.PaymentStatus), work.PaymentProvider, work.PaymentRef, work.PaymentAmount,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) MarkPlaying(ctx context.Context, id int64) (*domain.Submission, error) {
	var out *domain.Submission
	err := r.pg.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanSubmission(tx.QueryRow(ctx, submissionSelect+" WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return notFound(err, "submission")
		}
		if !cur.Status.CanActivate() {
			return domain.NewInvalidStatusError(cur.Status)
		}

		const requeue = `UPDATE track_submissions SET status = 'queued' WHERE status = 'playing' AND id <> $1`
		res, err := tx.Exec(ctx, requeue, id)
		if err != nil {
			return err
		}
		if n := res.RowsAffected(); n > 0 {
			r.log.Debug("returned playing submissions to queue", "count", n)
		}

		const q = `UPDATE track_submissions SET status = 'playing' WHERE id = $1` + submissionReturning
		out, err = scanSubmission(tx.QueryRow(ctx, q, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tracks & evaluations

const trackSelect = `SELECT id, name, submission_id, is_deleted, created_at FROM tracks`

func scanTrack(row pgx.Row) (*domain.Track, error) {
	var t domain.Track
	if err := row.Scan(&t.ID, &t.Name, &t.SubmissionID, &t.IsDeleted, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) GetTrack(ctx context.Context, id int64) (*domain.Track, error) {
	t, err := scanTrack(r.pool.QueryRow(ctx, trackSelect+" WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "track")
	}
	return t, nil
}

func (r *PostgresRepository) ResolveTrackForSubmission(ctx context.Context, submissionID int64, name string) (*domain.Track, error) {
	var out *domain.Track
	err := r.pg.WithTx(ctx, func(tx pgx.Tx) error {
		var linked *int64
		const lock = `SELECT linked_track_id FROM track_submissions WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRow(ctx, lock, submissionID).Scan(&linked); err != nil {
			return notFound(err, "submission")
		}

		if linked != nil {
			t, err := scanTrack(tx.QueryRow(ctx, trackSelect+" WHERE id = $1", *linked))
			switch {
			case err == nil:
				if name != "" && t.Name != name {
					if _, err := tx.Exec(ctx, `UPDATE tracks SET name = $2 WHERE id = $1`, t.ID, name); err != nil {
						return err
					}
					t.Name = name
				}
				out = t
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return err
			}
		}

		const insert = `
			INSERT INTO tracks (name, submission_id) VALUES ($1, $2)
			RETURNING id, name, submission_id, is_deleted, created_at
		`
		t, err := scanTrack(tx.QueryRow(ctx, insert, name, submissionID))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE track_submissions SET linked_track_id = $2 WHERE id = $1`, submissionID, t.ID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) RecordEvaluation(ctx context.Context, rec ports.EvaluationRecord) (int64, error) {
	var trackID int64
	err := r.pg.WithTx(ctx, func(tx pgx.Tx) error {
		if rec.TrackID == 0 {
			const insert = `INSERT INTO tracks (name, submission_id) VALUES ($1, $2) RETURNING id`
			if err := tx.QueryRow(ctx, insert, rec.TrackName, rec.SubmissionID).Scan(&trackID); err != nil {
				return err
			}
		} else if err := tx.QueryRow(ctx, `SELECT id FROM tracks WHERE id = $1 FOR UPDATE`, rec.TrackID).Scan(&trackID); err != nil {
			return notFound(err, "track")
		}

		if len(rec.Rows) > 0 {
			ins := r.sql.Insert("evaluations").Columns("track_id", "rater_name", "criterion_key", "score")
			for _, row := range rec.Rows {
				ins = ins.Values(trackID, row.JudgeName, row.CriterionKey, row.Score)
			}
			query, args, err := ins.ToSql()
			if err != nil {
				return fmt.Errorf("build evaluations insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				if isForeignKeyViolation(err) {
					return domain.NewNotFoundError("track")
				}
				return err
			}
		}

		if rec.TrackName != "" {
			if _, err := tx.Exec(ctx, `UPDATE tracks SET name = $2 WHERE id = $1`, trackID, rec.TrackName); err != nil {
				return err
			}
		}

		if rec.SubmissionID != nil {
			const link = `
				UPDATE track_submissions
				SET linked_track_id = $2,
				    status = CASE WHEN status IN ('queued', 'playing') THEN 'done' ELSE status END
				WHERE id = $1 AND status NOT IN ('deleted', 'failed')
			`
			if _, err := tx.Exec(ctx, link, *rec.SubmissionID, trackID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return trackID, nil
}

func (r *PostgresRepository) CountEvaluations(ctx context.Context, trackID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluations WHERE track_id = $1`, trackID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepository) TrackAverage(ctx context.Context, trackID int64) (float64, error) {
	const q = `SELECT COALESCE(AVG(score), 0)::float8 FROM evaluations WHERE track_id = $1`
	var avg float64
	if err := r.pool.QueryRow(ctx, q, trackID).Scan(&avg); err != nil {
		return 0, err
	}
	return avg, nil
}

func (r *PostgresRepository) ListTrackAverages(ctx context.Context) ([]ports.TrackAverage, error) {
	query, args, err := r.sql.
		Select("e.track_id", "AVG(e.score)::float8").
		From("evaluations e").
		Join("tracks t ON t.id = e.track_id").
		Where(sq.Eq{"t.is_deleted": false}).
		GroupBy("e.track_id").
		OrderBy("e.track_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build averages query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ports.TrackAverage, 0)
	for rows.Next() {
		var a ports.TrackAverage
		if err := rows.Scan(&a.TrackID, &a.Average); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
