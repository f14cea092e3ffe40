package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// RatingService runs the multi-judge rating session.
type RatingService struct {
	store ports.Store
	live  *LiveState
	gw    *Gateway
	links Links
	log   *slog.Logger
}

func NewRatingService(store ports.Store, live *LiveState, gw *Gateway, links Links, log *slog.Logger) *RatingService {
	return &RatingService{store: store, live: live, gw: gw, links: links, log: log}
}

// RatingJoined tells a client which slot it owns.
type RatingJoined struct {
	RaterID  string `json:"rater_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// EvaluationResult is the evaluation_result payload.
type EvaluationResult struct {
	TrackID     int64                     `json:"track_id"`
	TrackName   string                    `json:"track_name"`
	TrackURL    string                    `json:"track_url"`
	QRURL       string                    `json:"qr_url"`
	Raters      []domain.JudgeResult      `json:"raters"`
	Criteria    []domain.CriterionAverage `json:"criteria"`
	Overall     float64                   `json:"overall"`
	TopPosition int                       `json:"top_position"`
}

func joinedPayload(slot domain.RaterSlot) RatingJoined {
	return RatingJoined{
		RaterID:  slot.RaterID,
		UserID:   strconv.FormatInt(slot.UserID, 10),
		Username: slot.DisplayName,
	}
}

// Join gives the caller a rater slot, or rebinds the existing one to connID.
func (s *RatingService) Join(ctx context.Context, who domain.Identity, connID string) (domain.RaterSlot, error) {
	if !who.Role.CanAccessPanel() || !who.IsAuthenticated() {
		return domain.RaterSlot{}, domain.NewForbiddenError("panel access required")
	}
	slot, created := s.live.Join(who, connID)
	if created {
		s.log.Info("rater joined", "rater_id", slot.RaterID, "user_id", who.ID)
	}

	s.gw.JoinRoom(connID, ports.RoomRaters)
	s.gw.EmitTo(ctx, connID, EventRatingJoined, joinedPayload(slot))
	s.gw.SendPlaybackState(ctx, connID)
	if created {
		s.gw.Emit(ctx, ports.RoomPanel, EventRaterAdded, map[string]any{"rater": slot})
	}
	s.gw.PanelState(ctx)
	return slot, nil
}

// Leave removes the caller's slot.
func (s *RatingService) Leave(ctx context.Context, who domain.Identity, connID string) error {
	if !who.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	slot, ok := s.live.Leave(who.ID)
	s.gw.LeaveRoom(connID, ports.RoomRaters)
	s.gw.EmitTo(ctx, connID, EventRatingLeft, struct{}{})
	if !ok {
		return nil
	}
	s.log.Info("rater left", "rater_id", slot.RaterID, "user_id", who.ID)
	if slot.ConnID != connID {
		s.gw.LeaveRoom(slot.ConnID, ports.RoomRaters)
	}
	s.gw.Emit(ctx, ports.RoomPanel, EventRaterRemoved, map[string]string{"rater_id": slot.RaterID})
	s.gw.PanelState(ctx)
	return nil
}

// Kick removes another judge's slot and tells their connection to drop out
// of the session. The transport connection itself stays open.
func (s *RatingService) Kick(ctx context.Context, caller domain.Identity, target KickTarget) (domain.RaterSlot, error) {
	if !caller.Role.IsAdmin() {
		return domain.RaterSlot{}, domain.NewForbiddenError("admin role required")
	}
	if target.UserID <= 0 && target.RaterID == "" {
		return domain.RaterSlot{}, domain.NewValidationError("target", "user_id or rater_id required")
	}
	slot, ok := s.live.Kick(target)
	if !ok {
		return domain.RaterSlot{}, domain.NewNotFoundError("rater")
	}
	s.log.Info("rater kicked", "rater_id", slot.RaterID, "user_id", slot.UserID, "by", caller.ID)

	s.gw.EmitTo(ctx, slot.ConnID, EventKicked, struct{}{})
	s.gw.LeaveRoom(slot.ConnID, ports.RoomRaters)
	s.gw.Emit(ctx, ports.RoomPanel, EventRaterRemoved, map[string]string{"rater_id": slot.RaterID})
	s.gw.PanelState(ctx)
	return slot, nil
}

// SetScore moves one of the caller's own sliders.
func (s *RatingService) SetScore(ctx context.Context, who domain.Identity, raterID, criterion string, value float64) error {
	if !who.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.NewValidationError("value", "score must be a finite number")
	}
	slot, err := s.live.SetScore(who.ID, raterID, criterion, value)
	if err != nil {
		return err
	}
	s.gw.Emit(ctx, ports.RoomAll, EventSliderUpdated, map[string]any{
		"rater_id":      slot.RaterID,
		"criterion_key": criterion,
		"value":         value,
	})
	return nil
}

// RenameRater changes the label of any slot. An empty name keeps the old one.
func (s *RatingService) RenameRater(ctx context.Context, who domain.Identity, raterID, name string) error {
	if !who.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	slot, ok := s.live.RenameRater(raterID, name)
	if !ok {
		return domain.NewNotFoundError("rater")
	}
	s.gw.Emit(ctx, ports.RoomAll, EventRaterRenamed, map[string]string{
		"rater_id": slot.RaterID,
		"name":     slot.DisplayName,
	})
	s.gw.Emit(ctx, ports.RoomPanel, EventRatersPresence, presenceView(s.live.Snapshot().Raters))
	return nil
}

// ChangeTrackName overrides the live track name.
func (s *RatingService) ChangeTrackName(ctx context.Context, who domain.Identity, name string) error {
	if !who.Role.IsAdmin() {
		return domain.NewForbiddenError("admin role required")
	}
	s.live.SetTrackName(name)
	s.gw.Emit(ctx, ports.RoomAll, EventTrackNameChanged, trackNamePayload(s.live.Snapshot().TrackName))
	return nil
}

// Evaluate persists every joined judge's scores against the live track and
// broadcasts the aggregated result. Slot scores are kept; Reset clears them.
func (s *RatingService) Evaluate(ctx context.Context, who domain.Identity) (*EvaluationResult, error) {
	if !who.Role.IsAdmin() {
		return nil, domain.NewForbiddenError("admin role required")
	}
	snap := s.live.Snapshot()
	if len(snap.Raters) == 0 {
		return nil, domain.ErrNoRaters
	}
	name := snap.TrackName
	if name == "" {
		name = domain.UntitledTrackName
	}

	// A zero track id lets the store create the track with the rows.
	var trackID int64
	var submissionID *int64
	if snap.HasActive() {
		t, err := resolveSessionTrack(ctx, s.store, snap.ActiveID, name)
		switch {
		case err == nil:
			trackID = t.ID
			id := snap.ActiveID
			submissionID = &id
		case domain.IsNotFound(err):
			s.log.Warn("active submission vanished before evaluation", "submission_id", snap.ActiveID)
		default:
			return nil, err
		}
	}

	trackID, err := s.store.RecordEvaluation(ctx, ports.EvaluationRecord{
		TrackID:      trackID,
		TrackName:    name,
		SubmissionID: submissionID,
		Rows:         domain.EvaluationRows(trackID, snap.Raters, snap.Criteria),
	})
	if err != nil {
		return nil, err
	}
	summary := domain.AggregateScores(snap.Raters, snap.Criteria)
	s.log.Info("track evaluated", "track_id", trackID, "raters", len(snap.Raters), "overall", summary.Overall, "by", who.ID)

	if submissionID != nil && s.live.ClearActiveIf(*submissionID, false) {
		s.gw.PlaybackState(ctx)
		s.gw.QueueState(ctx)
	}

	rank, err := s.rankOf(ctx, trackID)
	if err != nil {
		s.log.Warn("failed to compute track rank", "track_id", trackID, "error", err)
	}

	result := &EvaluationResult{
		TrackID:     trackID,
		TrackName:   name,
		TrackURL:    s.links.TrackURL(trackID),
		QRURL:       s.links.QRURL(trackID),
		Raters:      summary.Judges,
		Criteria:    summary.Criteria,
		Overall:     summary.Overall,
		TopPosition: rank,
	}
	s.gw.Emit(ctx, ports.RoomAll, EventEvaluationResult, result)
	return result, nil
}

// rankOf compares the track's flat evaluation average against every
// non-deleted track, so ties share the better rank.
func (s *RatingService) rankOf(ctx context.Context, trackID int64) (int, error) {
	avg, err := s.store.TrackAverage(ctx, trackID)
	if err != nil {
		return 0, err
	}
	all, err := s.store.ListTrackAverages(ctx)
	if err != nil {
		return 0, err
	}
	averages := make([]float64, 0, len(all))
	for _, a := range all {
		averages = append(averages, a.Average)
	}
	return domain.RankOf(avg, averages), nil
}

// Reset zeroes every slot and clears the live track. A submission that was
// playing without ever being evaluated goes back to the queue.
func (s *RatingService) Reset(ctx context.Context, who domain.Identity) error {
	if !who.Role.IsAdmin() {
		return domain.NewForbiddenError("admin role required")
	}
	prev := s.live.Reset()
	s.log.Info("rating state reset", "previous_submission_id", prev, "by", who.ID)
	if prev != 0 {
		if err := s.requeueUnrated(ctx, prev); err != nil {
			s.log.Warn("failed to return submission to queue", "submission_id", prev, "error", err)
		}
	}

	s.gw.Emit(ctx, ports.RoomPanel, EventStateReset, buildPanelView(s.live.Snapshot()))
	s.gw.PlaybackState(ctx)
	s.gw.QueueState(ctx)
	return nil
}

func (s *RatingService) requeueUnrated(ctx context.Context, id int64) error {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusPlaying {
		return nil
	}
	rated, err := s.isRated(ctx, sub)
	if err != nil || rated {
		return err
	}
	_, err = s.store.UpdateSubmission(ctx, id, func(cur *domain.Submission) error {
		if cur.Status != domain.StatusPlaying {
			return ports.ErrNoChange
		}
		cur.Status = domain.StatusQueued
		return nil
	})
	return err
}

// isRated: the submission's linked track already holds evaluation rows. A track
// linked at activation time for the live page does not count.
func (s *RatingService) isRated(ctx context.Context, sub *domain.Submission) (bool, error) {
	if sub.LinkedTrackID == nil {
		return false, nil
	}
	n, err := s.store.CountEvaluations(ctx, *sub.LinkedTrackID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Restore puts a reconnecting judge's connection back into the raters room.
func (s *RatingService) Restore(ctx context.Context, who domain.Identity, connID string) bool {
	if !who.IsAuthenticated() {
		return false
	}
	slot, ok := s.live.Rebind(who.ID, connID)
	if !ok {
		return false
	}
	s.gw.JoinRoom(connID, ports.RoomRaters)
	s.gw.EmitTo(ctx, connID, EventRatingJoined, joinedPayload(slot))
	return true
}

// EnterPanel subscribes a connection to the panel room and sends it a full snapshot.
func (s *RatingService) EnterPanel(ctx context.Context, who domain.Identity, connID string) error {
	if !who.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	s.gw.JoinRoom(connID, ports.RoomPanel)
	s.gw.SendPanelState(ctx, connID)
	s.gw.SendQueueState(ctx, connID)
	s.gw.SendPlaybackState(ctx, connID)
	if slot, ok := s.live.SlotOf(who.ID); ok && who.IsAuthenticated() {
		s.gw.EmitTo(ctx, connID, EventRatingJoined, joinedPayload(slot))
	}
	s.gw.Emit(ctx, ports.RoomPanel, EventRatersPresence, presenceView(s.live.Snapshot().Raters))
	return nil
}

// LeavePanel unsubscribes a connection from the panel room.
func (s *RatingService) LeavePanel(connID string) {
	s.gw.LeaveRoom(connID, ports.RoomPanel)
}

// State returns the panel snapshot.
func (s *RatingService) State() *PanelStateView {
	return buildPanelView(s.live.Snapshot())
}

// resolveSessionTrack is the single resolve-or-create path for the track a
// submission is rated under, shared by activation and evaluation.
func resolveSessionTrack(ctx context.Context, tracks ports.TrackRepository, submissionID int64, name string) (*domain.Track, error) {
	track, err := tracks.ResolveTrackForSubmission(ctx, submissionID, name)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, errors.New("resolve track: repository returned no track")
	}
	return track, nil
}
