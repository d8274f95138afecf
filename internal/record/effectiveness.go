package record

import "math"

const neutralScore = 0.5

// Effectiveness tracks how well a record performs when it is used.
type Effectiveness struct {
	UsageCount      int     `json:"usage_count"`
	CompletenessAvg float64 `json:"completeness_avg"`
	ValidationRate  float64 `json:"validation_rate"`
	IterationsAvg   float64 `json:"iterations_avg"`
	FeedbackAvg     float64 `json:"feedback_avg"`
	Score           float64 `json:"score"`
}

// Usage is one observed use of a record. Feedback is -1, 0 or +1;
// Completeness is clamped to [0,1].
type Usage struct {
	Completeness     float64
	ValidationPassed bool
	Iterations       int
	Feedback         int
}

func newEffectiveness() Effectiveness {
	return Effectiveness{Score: neutralScore}
}

// apply folds u into the running averages and recomputes the score.
func (e Effectiveness) apply(u Usage) Effectiveness {
	n := float64(e.UsageCount)
	e.UsageCount++
	next := float64(e.UsageCount)

	completeness := clamp01(u.Completeness)
	validation := 0.0
	if u.ValidationPassed {
		validation = 1
	}
	feedback := float64(max(-1, min(1, u.Feedback)))
	iterations := float64(max(0, u.Iterations))

	e.CompletenessAvg = (e.CompletenessAvg*n + completeness) / next
	e.ValidationRate = (e.ValidationRate*n + validation) / next
	e.IterationsAvg = (e.IterationsAvg*n + iterations) / next
	e.FeedbackAvg = (e.FeedbackAvg*n + feedback) / next
	e.Score = e.score()
	return e
}

// score is 0.3 completeness + 0.3 validation + 0.2 feedback (rescaled to
// [0,1]) + 0.1/(avg iterations + 1), plus 0.1 once used more than five
// times, clamped to [0,1].
func (e Effectiveness) score() float64 {
	if e.UsageCount == 0 {
		return neutralScore
	}
	feedback := (e.FeedbackAvg + 1) / 2
	s := 0.3*e.CompletenessAvg +
		0.3*e.ValidationRate +
		0.2*feedback +
		0.1/(e.IterationsAvg+1)
	if e.UsageCount > 5 {
		s += 0.1
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
