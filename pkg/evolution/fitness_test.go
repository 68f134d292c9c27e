package evolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeIsDeterministic(t *testing.T) {
	e := NewEvaluator(Weights{Score: 0.6, Time: 0.2, Cost: 0.2}, time.Minute, 0.50)
	raw := RawResult{Accuracy: 0.8, TotalCostUSD: 0.10, Duration: 12 * time.Second, Completed: true}

	first := e.Compute(raw)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Compute(raw))
	}
}

func TestComputeCombinesWeightedComponents(t *testing.T) {
	e := NewEvaluator(Weights{Score: 0.6, Time: 0.2, Cost: 0.2}, time.Minute, 0.50)

	// accuracy 1.0, 15s of a 60s baseline, $0.10 of a $0.50 baseline:
	// 100 * (0.6*1 + 0.2*0.75 + 0.2*0.8) = 91
	result := e.Compute(RawResult{
		Accuracy:     1.0,
		TotalCostUSD: 0.10,
		Duration:     15 * time.Second,
		Completed:    true,
	})
	assert.True(t, result.Valid)
	assert.InDelta(t, 91.0, result.Score, 1e-9)
	assert.Equal(t, 1.0, result.Accuracy)
	assert.Equal(t, 15.0, result.TotalTimeSeconds)
}

func TestComputeFailedRunIsInvalidButKeepsMetrics(t *testing.T) {
	e := NewEvaluator(Weights{Score: 1}, time.Minute, 0.50)
	result := e.Compute(RawResult{
		Accuracy:     0.5,
		TotalCostUSD: 0.30,
		Duration:     5 * time.Second,
		Completed:    false,
	})
	assert.False(t, result.Valid)
	assert.Zero(t, result.Score)
	assert.Equal(t, 0.30, result.TotalCostUSD)
	assert.Equal(t, 5.0, result.TotalTimeSeconds)
}

func TestComputeClampsOverBaselineRuns(t *testing.T) {
	e := NewEvaluator(Weights{Score: 0.5, Time: 0.25, Cost: 0.25}, time.Minute, 0.50)

	// Slower and more expensive than both baselines: those components
	// bottom out at zero instead of going negative.
	result := e.Compute(RawResult{
		Accuracy:     1.0,
		TotalCostUSD: 3.00,
		Duration:     10 * time.Minute,
		Completed:    true,
	})
	assert.InDelta(t, 50.0, result.Score, 1e-9)
}

func TestComputeClampsAccuracy(t *testing.T) {
	e := NewEvaluator(Weights{Score: 1}, time.Minute, 0.50)
	result := e.Compute(RawResult{Accuracy: 1.7, Completed: true})
	assert.Equal(t, 1.0, result.Accuracy)
	assert.InDelta(t, 100.0, result.Score, 1e-9)
}

func TestComputeWeightsAreNotNormalized(t *testing.T) {
	// All-max weights can push the combination past 100 before the
	// final clamp; the clamp is the only normalization applied.
	e := NewEvaluator(Weights{Score: 1, Time: 1, Cost: 1}, time.Minute, 0.50)
	result := e.Compute(RawResult{Accuracy: 1, Duration: time.Second, Completed: true})
	assert.Equal(t, 100.0, result.Score)
}

func TestNewEvaluatorDefaultsBaselines(t *testing.T) {
	e := NewEvaluator(Weights{Score: 1}, 0, 0)
	result := e.Compute(RawResult{Accuracy: 0.4, Completed: true})
	assert.InDelta(t, 40.0, result.Score, 1e-9)
}
