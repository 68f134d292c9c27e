package evolution

import (
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/utils"
)

// FitnessResult is the scored outcome of evaluating one genome.
type FitnessResult struct {
	// Score is the combined fitness in [0,100].
	Score float64 `json:"score"`

	// Accuracy is the raw task signal in [0,1].
	Accuracy float64 `json:"accuracy"`

	TotalCostUSD     float64 `json:"totalCostUsd"`
	TotalTimeSeconds float64 `json:"totalTimeSeconds"`

	// Valid marks whether the evaluation run completed; invalid results
	// keep their metrics for inspection but are excluded from selection.
	Valid bool `json:"valid"`
}

// Weights combines the three fitness components. Each weight lives in
// [0,1] independently; the sum is deliberately not normalized to 1, so
// callers can scale components against each other freely. A weight set
// of {1, 0.2, 0.2} is legal and means accuracy dominates.
type Weights struct {
	Score float64 `json:"score"`
	Time  float64 `json:"time"`
	Cost  float64 `json:"cost"`
}

// RawResult is the unscored outcome of one evaluation run.
type RawResult struct {
	// Accuracy in [0,1] as judged by the caller's scorer.
	Accuracy float64

	TotalCostUSD float64
	Duration     time.Duration

	// Completed is false when the run failed or was cancelled.
	Completed bool
}

// Evaluator computes fitness from raw execution results. It is a pure
// function of its inputs: identical raw results always produce
// identical scores.
type Evaluator struct {
	weights Weights

	// Runs at or beyond the baseline score zero on that component; a
	// free or instant run scores full marks. The baseline doubles as the
	// normalization threshold: there is one knob per component, not a
	// separate reference point and cutoff.
	timeBaseline    time.Duration
	costBaselineUSD float64
}

// NewEvaluator creates a fitness evaluator. Non-positive baselines fall
// back to one minute and fifty cents.
func NewEvaluator(weights Weights, timeBaseline time.Duration, costBaselineUSD float64) *Evaluator {
	if timeBaseline <= 0 {
		timeBaseline = time.Minute
	}
	if costBaselineUSD <= 0 {
		costBaselineUSD = 0.50
	}
	return &Evaluator{
		weights:         weights,
		timeBaseline:    timeBaseline,
		costBaselineUSD: costBaselineUSD,
	}
}

// Compute scores one raw result. Failed runs produce an invalid result
// with score zero but keep their cost and duration for the trail.
func (e *Evaluator) Compute(raw RawResult) FitnessResult {
	result := FitnessResult{
		Accuracy:         utils.Clamp(raw.Accuracy, 0, 1),
		TotalCostUSD:     raw.TotalCostUSD,
		TotalTimeSeconds: raw.Duration.Seconds(),
		Valid:            raw.Completed,
	}
	if !raw.Completed {
		return result
	}

	timeComponent := utils.Clamp(1-raw.Duration.Seconds()/e.timeBaseline.Seconds(), 0, 1)
	costComponent := utils.Clamp(1-raw.TotalCostUSD/e.costBaselineUSD, 0, 1)

	combined := e.weights.Score*result.Accuracy +
		e.weights.Time*timeComponent +
		e.weights.Cost*costComponent

	result.Score = utils.Clamp(100*combined, 0, 100)
	return result
}
