package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ab = []Criterion{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}}

func TestAggregateScores_SymmetricPanel(t *testing.T) {
	slots := []RaterSlot{
		{RaterID: "r1", DisplayName: "one", Scores: map[string]float64{"a": 8, "b": 6}},
		{RaterID: "r2", DisplayName: "two", Scores: map[string]float64{"a": 4, "b": 10}},
	}

	got := AggregateScores(slots, ab)

	require.Len(t, got.Criteria, 2)
	assert.Equal(t, 6.0, got.Criteria[0].Average)
	assert.Equal(t, 8.0, got.Criteria[1].Average)
	assert.Equal(t, 7.0, got.Overall)
	assert.Equal(t, 7.0, got.Judges[0].Average)
	assert.Equal(t, 7.0, got.Judges[1].Average)
}

func TestAggregateScores_OverallIsMeanOfCriterionMeans(t *testing.T) {
	// b is scored by one judge only: criterion means are a=8, b=2 so the
	// overall is 5, while a flat mean of the raw scores would be 6.
	slots := []RaterSlot{
		{RaterID: "r1", DisplayName: "one", Scores: map[string]float64{"a": 10, "b": 2}},
		{RaterID: "r2", DisplayName: "two", Scores: map[string]float64{"a": 6}},
	}

	got := AggregateScores(slots, ab)

	assert.Equal(t, 8.0, got.Criteria[0].Average)
	assert.Equal(t, 2, got.Criteria[0].Judges)
	assert.Equal(t, 2.0, got.Criteria[1].Average)
	assert.Equal(t, 1, got.Criteria[1].Judges)
	assert.Equal(t, 5.0, got.Overall)
}

func TestAggregateScores_UnscoredCriterionExcluded(t *testing.T) {
	slots := []RaterSlot{{RaterID: "r1", Scores: map[string]float64{"a": 9}}}

	got := AggregateScores(slots, ab)

	assert.Zero(t, got.Criteria[1].Average)
	assert.Equal(t, 9.0, got.Overall)
}

func TestEvaluationRows(t *testing.T) {
	slots := []RaterSlot{
		{DisplayName: "one", Scores: map[string]float64{"a": 1, "b": 2, "stale": 5}},
		{DisplayName: "two", Scores: map[string]float64{"a": 3}},
	}

	rows := EvaluationRows(42, slots, ab)

	require.Len(t, rows, 3)
	assert.Equal(t, Evaluation{TrackID: 42, JudgeName: "one", CriterionKey: "a", Score: 1}, rows[0])
	assert.Equal(t, "b", rows[1].CriterionKey)
	assert.Equal(t, "two", rows[2].JudgeName)
}

func TestRankOf_TiesShareTheBetterRank(t *testing.T) {
	existing := []float64{9.0, 7.5, 7.5, 5.0}

	assert.Equal(t, 2, RankOf(7.5, existing))
	assert.Equal(t, 1, RankOf(9.5, existing))
	assert.Equal(t, 1, RankOf(9.0, existing))
	assert.Equal(t, 5, RankOf(1.0, existing))
	assert.Equal(t, 1, RankOf(0, nil))
}

func TestRole(t *testing.T) {
	assert.Equal(t, RoleJudge, ParseRole("Judge"))
	assert.Equal(t, RoleNone, ParseRole("root"))
	assert.False(t, RoleUser.CanAccessPanel())
	assert.True(t, RoleJudge.CanAccessPanel())
	assert.False(t, RoleJudge.IsAdmin())
	assert.True(t, RoleSuperadmin.IsAdmin())
	assert.Equal(t, "admin", RoleAdmin.String())
}

func TestParsePaidPriority(t *testing.T) {
	p, err := ParsePaidPriority(300)
	require.NoError(t, err)
	assert.Equal(t, Priority300, p)

	_, err = ParsePaidPriority(0)
	assert.True(t, IsValidationError(err))
	_, err = ParsePriority(150)
	assert.True(t, IsValidationError(err))
}

func TestDisplayName(t *testing.T) {
	s := Submission{Artist: " Artist ", Title: "Song"}
	assert.Equal(t, "Artist — Song", s.DisplayName())
	assert.Equal(t, UntitledTrackName, (&Submission{}).DisplayName())
	assert.Equal(t, "Song", (&Submission{Title: "Song"}).DisplayName())
}
