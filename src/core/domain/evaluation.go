package domain

import (
	"maps"
	"math"
)

// RaterSlot is one joined judge's live scoring state.
type RaterSlot struct {
	RaterID     string             `json:"id"`
	UserID      int64              `json:"user_id"`
	DisplayName string             `json:"name"`
	Order       int                `json:"order"`
	Scores      map[string]float64 `json:"scores"`

	// ConnID is the judge's most recent real-time connection.
	ConnID string `json:"-"`
}

// Clone deep-copies the slot so callers can read it outside the state lock.
func (s RaterSlot) Clone() RaterSlot {
	s.Scores = maps.Clone(s.Scores)
	return s
}

// ZeroScores builds a score map with every criterion set to 0.
func ZeroScores(criteria []Criterion) map[string]float64 {
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		scores[c.Key] = 0
	}
	return scores
}

// JudgeResult is one judge's row in an evaluation result.
type JudgeResult struct {
	RaterID string             `json:"id"`
	Name    string             `json:"name"`
	Scores  map[string]float64 `json:"scores"`
	Average float64            `json:"average"`
}

// CriterionAverage is the mean score for one criterion across judges.
type CriterionAverage struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Average float64 `json:"average"`
	Judges  int     `json:"judges"`
}

// ScoreSummary is the aggregated outcome of a rating session.
type ScoreSummary struct {
	Judges   []JudgeResult      `json:"raters"`
	Criteria []CriterionAverage `json:"criteria"`
	Overall  float64            `json:"overall"`
}

// AggregateScores computes per-judge averages, per-criterion averages over the
// judges that scored each criterion, and the overall score as the mean of the
// per-criterion averages. Criteria nobody scored are reported as 0 and do not
// count toward the overall score. slots must already be in panel order.
func AggregateScores(slots []RaterSlot, criteria []Criterion) ScoreSummary {
	summary := ScoreSummary{
		Judges:   make([]JudgeResult, 0, len(slots)),
		Criteria: make([]CriterionAverage, 0, len(criteria)),
	}

	for _, s := range slots {
		var total float64
		for _, v := range s.Scores {
			total += v
		}
		var avg float64
		if len(s.Scores) > 0 {
			avg = total / float64(len(s.Scores))
		}
		summary.Judges = append(summary.Judges, JudgeResult{
			RaterID: s.RaterID,
			Name:    s.DisplayName,
			Scores:  maps.Clone(s.Scores),
			Average: Round2(avg),
		})
	}

	var overallSum float64
	var scored int
	for _, c := range criteria {
		var total float64
		var n int
		for _, s := range slots {
			if v, ok := s.Scores[c.Key]; ok {
				total += v
				n++
			}
		}
		ca := CriterionAverage{Key: c.Key, Label: c.Label, Judges: n}
		if n > 0 {
			avg := total / float64(n)
			ca.Average = Round2(avg)
			overallSum += avg
			scored++
		}
		summary.Criteria = append(summary.Criteria, ca)
	}
	if scored > 0 {
		summary.Overall = Round2(overallSum / float64(scored))
	}
	return summary
}

// EvaluationRows expands the slots into one Evaluation per (judge, criterion).
// Only configured criteria present in a slot produce a row.
func EvaluationRows(trackID int64, slots []RaterSlot, criteria []Criterion) []Evaluation {
	rows := make([]Evaluation, 0, len(slots)*len(criteria))
	for _, s := range slots {
		for _, c := range criteria {
			v, ok := s.Scores[c.Key]
			if !ok {
				continue
			}
			rows = append(rows, Evaluation{
				TrackID:      trackID,
				JudgeName:    s.DisplayName,
				CriterionKey: c.Key,
				Score:        v,
			})
		}
	}
	return rows
}

// RankOf is 1 + the number of averages strictly greater than score, so ties
// share the better rank.
func RankOf(score float64, averages []float64) int {
	better := 0
	for _, a := range averages {
		if a > score {
			better++
		}
	}
	return better + 1
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
