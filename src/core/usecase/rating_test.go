package usecase

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

func TestJoinBroadcastsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.join(t, judgeA, "c1")
	assert.True(t, e.out.inRoom("c1", ports.RoomRaters))
	require.Len(t, e.out.find(EventRaterAdded), 1)

	joined := e.out.last(t, EventRatingJoined)
	assert.Equal(t, "c1", joined.ConnID)
	assert.Equal(t, RatingJoined{RaterID: first.RaterID, UserID: "2", Username: "anna"}, joined.Payload)

	again := e.join(t, judgeA, "c2")
	assert.Equal(t, first.RaterID, again.RaterID)
	assert.Len(t, e.out.find(EventRaterAdded), 1)
	assert.True(t, e.out.inRoom("c2", ports.RoomRaters))
	assert.Len(t, e.live.Snapshot().Raters, 1)

	_, err := e.rating.Join(ctx, plainID, "c3")
	assert.True(t, domain.IsForbidden(err))
	_, err = e.rating.Join(ctx, domain.Identity{Role: domain.RoleJudge}, "c4")
	assert.True(t, domain.IsForbidden(err))
}

func TestLeaveRemovesSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.join(t, judgeA, "c1")
	e.out.reset()

	require.NoError(t, e.rating.Leave(ctx, judgeA, "c1"))
	assert.False(t, e.out.inRoom("c1", ports.RoomRaters))
	removed := e.out.last(t, EventRaterRemoved)
	assert.Equal(t, map[string]string{"rater_id": slot.RaterID}, removed.Payload)
	assert.Equal(t, "c1", e.out.last(t, EventRatingLeft).ConnID)

	// Leaving twice only acknowledges.
	e.out.reset()
	require.NoError(t, e.rating.Leave(ctx, judgeA, "c1"))
	assert.Empty(t, e.out.find(EventRaterRemoved))
	assert.Len(t, e.out.find(EventRatingLeft), 1)
}

func TestKick(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.join(t, judgeB, "cb")
	e.out.reset()

	gone, err := e.rating.Kick(ctx, adminID, KickTarget{RaterID: slot.RaterID})
	require.NoError(t, err)
	assert.Equal(t, judgeB.ID, gone.UserID)

	kicked := e.out.last(t, EventKicked)
	assert.Equal(t, "cb", kicked.ConnID)
	assert.False(t, e.out.inRoom("cb", ports.RoomRaters))
	assert.Equal(t, ports.RoomPanel, e.out.last(t, EventRaterRemoved).Room)

	_, err = e.rating.Kick(ctx, adminID, KickTarget{RaterID: slot.RaterID})
	assert.True(t, domain.IsNotFound(err))
	_, err = e.rating.Kick(ctx, adminID, KickTarget{})
	assert.True(t, domain.IsValidationError(err))
}

func TestAdminOnlyCommandsAreSilentForJudges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sub := e.seed(t, "a", domain.PriorityFree, domain.StatusQueued)
	_, err := e.playback.Activate(ctx, adminID, sub.ID, true)
	require.NoError(t, err)
	a := e.join(t, judgeA, "ca")
	b := e.join(t, judgeB, "cb")
	require.NoError(t, e.rating.SetScore(ctx, judgeA, a.RaterID, "rhyme", 5))
	before := e.live.Snapshot()
	e.out.reset()

	_, err = e.rating.Kick(ctx, judgeA, KickTarget{RaterID: b.RaterID})
	assert.True(t, domain.IsForbidden(err))
	_, err = e.rating.Evaluate(ctx, judgeA)
	assert.True(t, domain.IsForbidden(err))
	assert.True(t, domain.IsForbidden(e.rating.Reset(ctx, judgeA)))
	assert.True(t, domain.IsForbidden(e.rating.ChangeTrackName(ctx, judgeA, "x")))

	assert.Empty(t, e.out.all())
	assert.Equal(t, before, e.live.Snapshot())
	assert.Empty(t, e.store.Evaluations())
	assert.Equal(t, domain.StatusPlaying, e.get(t, sub.ID).Status)
}

func TestSetScoreBroadcastsSlider(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.join(t, judgeA, "ca")
	e.out.reset()

	require.NoError(t, e.rating.SetScore(ctx, judgeA, slot.RaterID, "quality", 7.5))
	msg := e.out.last(t, EventSliderUpdated)
	assert.Equal(t, ports.RoomAll, msg.Room)
	assert.Equal(t, map[string]any{"rater_id": slot.RaterID, "criterion_key": "quality", "value": 7.5}, msg.Payload)

	assert.True(t, domain.IsForbidden(e.rating.SetScore(ctx, plainID, slot.RaterID, "quality", 1)))
	assert.ErrorIs(t, e.rating.SetScore(ctx, judgeB, "", "quality", 1), domain.ErrNotJoined)
}

func TestEvaluateActiveSubmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// An earlier, better track.
	_, err := e.store.RecordEvaluation(ctx, ports.EvaluationRecord{
		TrackName: "old hit",
		Rows:      []domain.Evaluation{{JudgeName: "x", CriterionKey: "rhyme", Score: 9}},
	})
	require.NoError(t, err)

	sub := e.seed(t, "Artist", domain.PriorityFree, domain.StatusQueued)
	_, err = e.playback.Activate(ctx, adminID, sub.ID, true)
	require.NoError(t, err)

	a := e.join(t, judgeA, "ca")
	b := e.join(t, judgeB, "cb")
	require.NoError(t, e.rating.SetScore(ctx, judgeA, a.RaterID, "rhyme", 8))
	require.NoError(t, e.rating.SetScore(ctx, judgeB, b.RaterID, "rhyme", 6))
	require.NoError(t, e.rating.SetScore(ctx, judgeB, b.RaterID, "structure", 4))
	e.out.reset()

	res, err := e.rating.Evaluate(ctx, adminID)
	require.NoError(t, err)

	assert.Equal(t, "Artist — track", res.TrackName)
	assert.Equal(t, "https://rate.example.com/track/"+strconv.FormatInt(res.TrackID, 10), res.TrackURL)
	assert.Equal(t, 1.8, res.Overall)
	assert.Equal(t, 2, res.TopPosition)
	require.Len(t, res.Raters, 2)
	assert.Equal(t, a.RaterID, res.Raters[0].RaterID)
	assert.Equal(t, 1.6, res.Raters[0].Average)
	assert.Equal(t, 2.0, res.Raters[1].Average)
	require.Len(t, res.Criteria, len(domain.DefaultCriteria))
	assert.Equal(t, 7.0, res.Criteria[0].Average)

	got := e.get(t, sub.ID)
	assert.Equal(t, domain.StatusDone, got.Status)
	require.NotNil(t, got.LinkedTrackID)
	assert.Equal(t, res.TrackID, *got.LinkedTrackID)
	n, err := e.store.CountEvaluations(ctx, res.TrackID)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	snap := e.live.Snapshot()
	assert.False(t, snap.HasActive())
	assert.False(t, snap.Playback.IsPlaying)
	assert.Equal(t, "Artist — track", snap.TrackName)
	assert.Equal(t, 8.0, snap.Raters[0].Scores["rhyme"], "evaluate keeps scores")

	msg := e.out.last(t, EventEvaluationResult)
	assert.Equal(t, ports.RoomAll, msg.Room)
	assert.Same(t, res, msg.Payload)
	assert.NotEmpty(t, e.out.find(EventPlaybackState))
}

func TestEvaluateWithoutActiveSubmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.join(t, judgeA, "ca")
	require.NoError(t, e.rating.SetScore(ctx, judgeA, a.RaterID, "vibe", 10))

	res, err := e.rating.Evaluate(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, domain.UntitledTrackName, res.TrackName)
	assert.Equal(t, 1, res.TopPosition)

	require.NoError(t, e.rating.ChangeTrackName(ctx, adminID, "  Live jam "))
	assert.Equal(t, map[string]string{"track_name": "Live jam"}, e.out.last(t, EventTrackNameChanged).Payload)
	res2, err := e.rating.Evaluate(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "Live jam", res2.TrackName)
	assert.NotEqual(t, res.TrackID, res2.TrackID)
	assert.Equal(t, 1, res2.TopPosition, "ties share the better rank")
}

func TestEvaluateWithoutRaters(t *testing.T) {
	e := newEnv(t)
	_, err := e.rating.Evaluate(context.Background(), adminID)
	assert.ErrorIs(t, err, domain.ErrNoRaters)
	assert.Empty(t, e.store.Evaluations())
}

func TestResetReturnsUnratedSubmissionToQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sub := e.seed(t, "a", domain.PriorityFree, domain.StatusQueued)
	_, err := e.playback.Activate(ctx, adminID, sub.ID, true)
	require.NoError(t, err)
	a := e.join(t, judgeA, "ca")
	require.NoError(t, e.rating.SetScore(ctx, judgeA, a.RaterID, "rhyme", 3))
	e.out.reset()

	require.NoError(t, e.rating.Reset(ctx, adminID))

	assert.Equal(t, domain.StatusQueued, e.get(t, sub.ID).Status)
	snap := e.live.Snapshot()
	assert.False(t, snap.HasActive())
	assert.Empty(t, snap.TrackName)
	assert.Zero(t, snap.Raters[0].Scores["rhyme"])

	reset := e.out.last(t, EventStateReset)
	assert.Equal(t, ports.RoomPanel, reset.Room)
	assert.Empty(t, reset.Payload.(*PanelStateView).TrackName)
	assert.NotEmpty(t, e.out.find(EventQueueState))
}

func TestEvaluatedSubmissionIsFinal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sub := e.seed(t, "a", domain.PriorityFree, domain.StatusQueued)
	next := e.seed(t, "b", domain.PriorityFree, domain.StatusQueued)
	_, err := e.playback.Activate(ctx, adminID, sub.ID, true)
	require.NoError(t, err)
	e.join(t, judgeA, "ca")
	_, err = e.rating.Evaluate(ctx, adminID)
	require.NoError(t, err)

	_, err = e.playback.Activate(ctx, adminID, sub.ID, false)
	assert.True(t, domain.IsConflict(err))

	_, err = e.playback.Activate(ctx, adminID, next.ID, false)
	require.NoError(t, err)
	require.NoError(t, e.rating.Reset(ctx, adminID))
	assert.Equal(t, domain.StatusDone, e.get(t, sub.ID).Status)
	assert.Equal(t, domain.StatusQueued, e.get(t, next.ID).Status)
	assert.False(t, e.live.Snapshot().HasActive())
}

func TestRenameRater(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.join(t, judgeA, "ca")
	e.out.reset()

	require.NoError(t, e.rating.RenameRater(ctx, judgeB, slot.RaterID, "Anna"))
	renamed := e.out.last(t, EventRaterRenamed)
	assert.Equal(t, ports.RoomAll, renamed.Room)
	assert.Equal(t, map[string]string{"rater_id": slot.RaterID, "name": "Anna"}, renamed.Payload)

	presence := e.out.last(t, EventRatersPresence).Payload.(map[string]any)
	assert.Equal(t, []RaterPresence{{UserID: "2", Username: "Anna", RaterID: slot.RaterID}}, presence["raters"])

	assert.True(t, domain.IsNotFound(e.rating.RenameRater(ctx, judgeB, "ghost", "x")))
	assert.True(t, domain.IsForbidden(e.rating.RenameRater(ctx, plainID, slot.RaterID, "x")))
}

func TestRestoreRebindsReconnectedJudge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.join(t, judgeA, "old")

	assert.False(t, e.rating.Restore(ctx, anonymID, "x"))
	assert.False(t, e.rating.Restore(ctx, judgeB, "x"))
	assert.False(t, e.out.inRoom("x", ports.RoomRaters))

	require.True(t, e.rating.Restore(ctx, judgeA, "new"))
	assert.True(t, e.out.inRoom("new", ports.RoomRaters))
	got, _ := e.live.SlotOf(judgeA.ID)
	assert.Equal(t, "new", got.ConnID)
	assert.Equal(t, slot.RaterID, got.RaterID)
	assert.Equal(t, "new", e.out.last(t, EventRatingJoined).ConnID)
}

func TestEnterPanel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "a", domain.PriorityFree, domain.StatusQueued)
	e.join(t, judgeA, "ca")
	e.out.reset()

	require.NoError(t, e.rating.EnterPanel(ctx, judgeA, "panel-1"))
	assert.True(t, e.out.inRoom("panel-1", ports.RoomPanel))
	for _, ev := range []string{EventInitialState, EventQueueState, EventPlaybackState, EventRatingJoined} {
		assert.Equal(t, "panel-1", e.out.last(t, ev).ConnID, ev)
	}
	assert.Equal(t, ports.RoomPanel, e.out.last(t, EventRatersPresence).Room)

	e.rating.LeavePanel("panel-1")
	assert.False(t, e.out.inRoom("panel-1", ports.RoomPanel))

	assert.True(t, domain.IsForbidden(e.rating.EnterPanel(ctx, plainID, "v")))
	assert.False(t, e.out.inRoom("v", ports.RoomPanel))
}
