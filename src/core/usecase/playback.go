package usecase

import (
	"context"
	"log/slog"
	"sync"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// PlaybackService activates submissions and drives the shared clock.
type PlaybackService struct {
	store ports.Store
	live  *LiveState
	gw    *Gateway
	links Links
	log   *slog.Logger

	// activating serializes the store write and the live pointer so both
	// always name the same submission. It is never taken under the state lock.
	activating sync.Mutex
}

func NewPlaybackService(store ports.Store, live *LiveState, gw *Gateway, links Links, log *slog.Logger) *PlaybackService {
	return &PlaybackService{store: store, live: live, gw: gw, links: links, log: log}
}

// LiveTrack is the live_track_changed payload used by public widgets.
type LiveTrack struct {
	TrackID   int64  `json:"track_id"`
	TrackName string `json:"track_name"`
	TrackURL  string `json:"track_url"`
	QRURL     string `json:"qr_url"`
}

// Activate makes a submission the active track and restarts the clock.
// Any other playing submission goes back to the queue. Resolving the public
// track page is best-effort and never blocks activation.
func (s *PlaybackService) Activate(ctx context.Context, caller domain.Identity, id int64, autoplay bool) (domain.Playback, error) {
	if !caller.Role.CanAccessPanel() {
		return domain.Playback{}, domain.NewForbiddenError("panel access required")
	}
	s.activating.Lock()
	defer s.activating.Unlock()

	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return domain.Playback{}, err
	}
	if !sub.Status.CanActivate() {
		return domain.Playback{}, domain.NewInvalidStatusError(sub.Status)
	}
	sub, err = s.store.MarkPlaying(ctx, id)
	if err != nil {
		return domain.Playback{}, err
	}

	name := sub.DisplayName()
	track, err := resolveSessionTrack(ctx, s.store, sub.ID, name)
	if err != nil {
		s.log.Warn("failed to resolve live track", "submission_id", sub.ID, "error", err)
	}

	pb := s.live.Activate(sub.ID, name, autoplay)
	s.log.Info("submission activated", "submission_id", sub.ID, "autoplay", autoplay, "by", caller.ID)

	if track != nil {
		s.gw.Emit(ctx, ports.RoomPublic, EventLiveTrackChanged, LiveTrack{
			TrackID:   track.ID,
			TrackName: name,
			TrackURL:  s.links.TrackURL(track.ID),
			QRURL:     s.links.QRURL(track.ID),
		})
	}
	s.gw.Emit(ctx, ports.RoomAll, EventTrackNameChanged, trackNamePayload(name))
	s.gw.PlaybackState(ctx)
	s.gw.QueueState(ctx)
	return pb, nil
}

// Command applies a clock transition. Only joined raters may drive playback.
// Seek targets past a known duration are clamped to it.
func (s *PlaybackService) Command(ctx context.Context, caller domain.Identity, action domain.PlaybackAction, targetMS int64) (domain.Playback, error) {
	if !caller.IsAuthenticated() {
		return domain.Playback{}, domain.ErrNotJoined
	}
	if _, ok := s.live.SlotOf(caller.ID); !ok {
		return domain.Playback{}, domain.ErrNotJoined
	}

	var durationMS int64
	if action == domain.ActionSeek {
		durationMS = s.activeDurationMS(ctx)
	}
	pb, err := s.live.ApplyPlayback(action, targetMS, durationMS)
	if err != nil {
		return pb, err
	}
	s.gw.PlaybackState(ctx)
	return pb, nil
}

// State returns the current clock with the active submission.
func (s *PlaybackService) State(ctx context.Context) (*PlaybackStateView, error) {
	return buildPlaybackView(ctx, s.live, s.store, s.links)
}

// activeDurationMS reads the seek bound outside the state lock. Unknown
// durations and read failures yield 0, which disables the clamp.
func (s *PlaybackService) activeDurationMS(ctx context.Context) int64 {
	id := s.live.ActiveID()
	if id == 0 {
		return 0
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		s.log.Debug("duration lookup failed", "submission_id", id, "error", err)
		return 0
	}
	return sub.DurationMS()
}
