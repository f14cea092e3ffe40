package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// Links builds absolute URLs for payloads consumed by pages and widgets.
type Links struct {
	BaseURL string
}

// TrackURL is the public page of a rated track.
func (l Links) TrackURL(trackID int64) string {
	return fmt.Sprintf("%s/track/%d", strings.TrimRight(l.BaseURL, "/"), trackID)
}

// QRURL renders a QR code pointing at the track page.
func (l Links) QRURL(trackID int64) string {
	return fmt.Sprintf("%s/track/%d/qr.png", strings.TrimRight(l.BaseURL, "/"), trackID)
}

// AudioURL is where the panel player streams the submission from.
func (l Links) AudioURL(s *domain.Submission) string {
	ext := strings.TrimPrefix(strings.ToLower(s.FileExt), ".")
	return fmt.Sprintf("%s/media/submissions/%s.%s", strings.TrimRight(l.BaseURL, "/"), s.FileKey, ext)
}

// QueueItemView is one row of the queue_state payload.
type QueueItemView struct {
	ID            int64   `json:"id"`
	Artist        string  `json:"artist"`
	Title         string  `json:"title"`
	DisplayName   string  `json:"display_name"`
	Priority      int     `json:"priority"`
	Status        string  `json:"status"`
	DurationSec   *int    `json:"duration_sec"`
	CreatedAt     *string `json:"created_at"`
	QueuePosition *int    `json:"queue_position"`
}

// QueueStateView is the queue_state payload.
type QueueStateView struct {
	Items  []QueueItemView `json:"items"`
	Counts map[string]int  `json:"counts"`
}

// ActiveTrackView describes the active submission in playback_state.
type ActiveTrackView struct {
	ID          int64  `json:"id"`
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	DisplayName string `json:"display_name"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
	DurationSec *int   `json:"duration_sec"`
	FileKey     string `json:"file_uuid"`
	AudioURL    string `json:"audio_url"`
}

// PlaybackView carries the clock rebased to the server's send time.
// Clients derive the live position as position_ms + (their_now - server_ts_ms)
// while is_playing.
type PlaybackView struct {
	IsPlaying  bool  `json:"is_playing"`
	PositionMS int64 `json:"position_ms"`
	ServerTSMS int64 `json:"server_ts_ms"`
}

// PlaybackStateView is the playback_state payload.
type PlaybackStateView struct {
	Active   *ActiveTrackView `json:"active"`
	Playback PlaybackView     `json:"playback"`
}

// PanelStateView is the initial_state / state_reset payload.
type PanelStateView struct {
	TrackName string             `json:"track_name"`
	Raters    []domain.RaterSlot `json:"raters"`
	Criteria  []domain.Criterion `json:"criteria"`
}

func queueItemView(s domain.Submission, pos *int) QueueItemView {
	var created *string
	if !s.CreatedAt.IsZero() {
		v := s.CreatedAt.UTC().Format(time.RFC3339)
		created = &v
	}
	return QueueItemView{
		ID:            s.ID,
		Artist:        s.Artist,
		Title:         s.Title,
		DisplayName:   s.DisplayName(),
		Priority:      int(s.Priority),
		Status:        string(s.Status),
		DurationSec:   s.DurationSec,
		CreatedAt:     created,
		QueuePosition: pos,
	}
}

// buildQueueView reads one snapshot of the visible queue.
func buildQueueView(ctx context.Context, store ports.SubmissionRepository, limit int) (*QueueStateView, error) {
	if limit <= 0 {
		limit = domain.DefaultQueueViewLimit
	}
	subs, err := store.FindSubmissionsByStatus(ctx, domain.QueueVisibleStatuses, limit)
	if err != nil {
		return nil, err
	}
	queued, err := store.CountSubmissionsByStatus(ctx, domain.StatusQueued)
	if err != nil {
		return nil, err
	}
	entries := domain.RankQueue(subs, limit)
	view := &QueueStateView{
		Items:  make([]QueueItemView, 0, len(entries)),
		Counts: map[string]int{string(domain.StatusQueued): queued},
	}
	for _, e := range entries {
		view.Items = append(view.Items, queueItemView(e.Submission, e.Position))
	}
	return view, nil
}

// buildPlaybackView combines the clock with a fresh read of the active
// submission. The two reads may be briefly inconsistent.
func buildPlaybackView(ctx context.Context, live *LiveState, store ports.SubmissionRepository, links Links) (*PlaybackStateView, error) {
	snap := live.Snapshot()
	view := &PlaybackStateView{
		Playback: PlaybackView{
			IsPlaying:  snap.Playback.IsPlaying,
			PositionMS: snap.Playback.PositionAt(snap.NowMS),
			ServerTSMS: snap.NowMS,
		},
	}
	if !snap.HasActive() {
		return view, nil
	}
	sub, err := store.GetSubmission(ctx, snap.ActiveID)
	if err != nil {
		if domain.IsNotFound(err) {
			return view, nil
		}
		return nil, err
	}
	if sub.Status == domain.StatusDeleted || sub.Status == domain.StatusFailed {
		return view, nil
	}
	view.Active = &ActiveTrackView{
		ID:          sub.ID,
		Artist:      sub.Artist,
		Title:       sub.Title,
		DisplayName: sub.DisplayName(),
		Priority:    int(sub.Priority),
		Status:      string(sub.Status),
		DurationSec: sub.DurationSec,
		FileKey:     sub.FileKey,
		AudioURL:    links.AudioURL(sub),
	}
	return view, nil
}

func buildPanelView(snap LiveSnapshot) *PanelStateView {
	raters := snap.Raters
	if raters == nil {
		raters = []domain.RaterSlot{}
	}
	return &PanelStateView{
		TrackName: snap.TrackName,
		Raters:    raters,
		Criteria:  snap.Criteria,
	}
}
