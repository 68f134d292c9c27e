package evolution

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/store"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// answerRunner completes every node with a fixed answer at a fixed
// cost, so whole graphs run to completion deterministically.
func answerRunner(answer string, costPerNode float64) core.NodeRunner {
	return core.NodeRunnerFunc(func(_ context.Context, node *core.Node, _ core.Payload) (*core.NodeResult, error) {
		return &core.NodeResult{
			Output:        answer,
			TakenHandoffs: node.HandOffs,
			UsdCost:       costPerNode,
		}, nil
	})
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		PopulationSize: 4,
		Generations:    3,
		TournamentSize: 2,
		Models:         []string{"gpt-4o-mini"},
		Rand:           rand.New(rand.NewSource(11)),
	}
}

func testCases() []EvaluationCase {
	return []EvaluationCase{
		{Input: "what is 6 times 7", Expected: "42"},
		{Input: "the answer to everything", Expected: "42"},
	}
}

func TestEvolveEndToEnd(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0.001), workflow.DefaultRunnerConfig())
	evaluator := NewEvaluator(Weights{Score: 0.6, Time: 0.2, Cost: 0.2}, time.Minute, 0.50)
	engine := NewEngine(testEngineConfig(), runner, evaluator, &DummyOperator{}, ExactMatchScorer)

	report, err := engine.Evolve(context.Background(), "run-e2e", testCases(), nil)
	require.NoError(t, err)

	assert.Equal(t, "run-e2e", report.RunID)
	assert.Equal(t, "generation budget exhausted", report.StopReason)
	require.Len(t, report.Generations, 3)

	for _, gen := range report.Generations {
		require.NotNil(t, gen.Stats)
		assert.Equal(t, 4, gen.Stats.Size)
		assert.NotEmpty(t, gen.BestVersionID)
	}

	require.NotNil(t, report.Best)
	assert.True(t, report.Best.IsEvaluated())
	// Every case matches, so the best genome scores well above zero.
	assert.Greater(t, report.Best.FitnessScore(), 50.0)
	require.NotNil(t, report.BestVersion)
	assert.Equal(t, report.Best.WorkflowVersionID(), report.BestVersion.WorkflowVersionID)
}

func TestEvolveRequiresCases(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	engine := NewEngine(testEngineConfig(), runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer)

	_, err := engine.Evolve(context.Background(), "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestEvolveSeedsAroundSuppliedGenomes(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	engine := NewEngine(testEngineConfig(), runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer)

	supplied, err := WrapGraph(workflow.NewValidator(), linearGraph("Answer with just the number."), EvolutionContext{})
	require.NoError(t, err)

	report, err := engine.Evolve(context.Background(), "run-seed", testCases(), []*Genome{supplied})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Generations[0].Stats.Size)
}

type failingOperator struct{}

func (failingOperator) Mutate(context.Context, MutationRequest) MutationOutcome {
	return mutationFailure("operator always fails", 0.002)
}

func TestEvolveSurvivesMutationFailures(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	engine := NewEngine(testEngineConfig(), runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		failingOperator{}, ExactMatchScorer)

	report, err := engine.Evolve(context.Background(), "run-fail", testCases(), nil)
	require.NoError(t, err)
	require.Len(t, report.Generations, 3)

	// Failed attempts copy parents forward, so generations stay full.
	assert.Equal(t, 4, report.Generations[1].Stats.Size)
	assert.Greater(t, report.Generations[0].MutationFailures, 0)
	require.NotNil(t, report.Best)
}

func TestEvolveStopsOnCostBudget(t *testing.T) {
	budget := workflow.NewBudget(0.01)
	runner := workflow.NewRunner(answerRunner("42", 0.02), workflow.DefaultRunnerConfig(),
		workflow.WithBudget(budget))
	cfg := testEngineConfig()
	cfg.Generations = 10
	engine := NewEngine(cfg, runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer, WithEngineBudget(budget))

	report, err := engine.Evolve(context.Background(), "run-budget", testCases(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cost budget exhausted", report.StopReason)
	assert.Less(t, len(report.Generations), 10)
	assert.GreaterOrEqual(t, report.TotalCostUSD, 0.01)
}

func TestEvolveStopsOnTimeBudget(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	cfg := testEngineConfig()
	cfg.Generations = 1000
	cfg.MaxDuration = time.Nanosecond
	engine := NewEngine(cfg, runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer)

	report, err := engine.Evolve(context.Background(), "run-slow", testCases(), nil)
	require.NoError(t, err)
	assert.Equal(t, "time budget exhausted", report.StopReason)
	assert.Empty(t, report.Generations)
}

func TestEvolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	engine := NewEngine(testEngineConfig(), runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer)

	report, err := engine.Evolve(ctx, "run-cancel", testCases(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", report.StopReason)
}

func TestEvolvePersistsGenomeVersions(t *testing.T) {
	versions := store.NewMemoryStore()
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	engine := NewEngine(testEngineConfig(), runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer, WithEngineStore(versions))

	report, err := engine.Evolve(context.Background(), "run-store", testCases(), nil)
	require.NoError(t, err)
	require.NotNil(t, report.BestVersion)

	saved, err := versions.RetrieveWorkflowVersion(context.Background(), report.BestVersion.WorkflowVersionID)
	require.NoError(t, err)
	assert.Equal(t, "run-store", saved.RunID)
	require.NotNil(t, saved.Graph)
}

// versionLog records every persisted workflow version so tests can
// inspect offspring lineage.
type versionLog struct {
	*store.MemoryStore
	saved []*core.WorkflowVersion
}

func (v *versionLog) SaveWorkflowVersion(ctx context.Context, version *core.WorkflowVersion) error {
	v.saved = append(v.saved, version)
	return v.MemoryStore.SaveWorkflowVersion(ctx, version)
}

func TestEvolveBreedsByCrossover(t *testing.T) {
	log := &versionLog{MemoryStore: store.NewMemoryStore()}
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())

	cfg := testEngineConfig()
	cfg.PopulationSize = 6
	cfg.Generations = 5
	cfg.CrossoverProbability = 1
	engine := NewEngine(cfg, runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer,
		WithCrossover(NewCrossoverOperator(nil, rand.New(rand.NewSource(7)))),
		WithEngineStore(log))

	report, err := engine.Evolve(context.Background(), "run-cross", testCases(), nil)
	require.NoError(t, err)
	require.Len(t, report.Generations, 5)

	// With the probability pinned at one, some offspring must carry two
	// parents in their lineage.
	twoParent := 0
	for _, v := range log.saved {
		if len(v.ParentVersionIDs) == 2 {
			twoParent++
		}
	}
	assert.Greater(t, twoParent, 0, "no two-parent offspring recorded")
}

type countingOperator struct {
	inner Operator
	calls atomic.Int64
}

func (c *countingOperator) Mutate(ctx context.Context, req MutationRequest) MutationOutcome {
	c.calls.Add(1)
	return c.inner.Mutate(ctx, req)
}

func TestEvolveRoutesBetweenOperators(t *testing.T) {
	structural := &countingOperator{inner: &DummyOperator{}}
	refining := &countingOperator{inner: &PromptShuffleOperator{}}

	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	cfg := testEngineConfig()
	cfg.NewNodeProbability = 1
	engine := NewEngine(cfg, runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		structural, ExactMatchScorer, WithRefiningOperator(refining))

	_, err := engine.Evolve(context.Background(), "run-route", testCases(), nil)
	require.NoError(t, err)
	assert.Greater(t, structural.calls.Load(), int64(0))
	assert.Zero(t, refining.calls.Load())
}

func TestEvolvePrunesSimilarOffspring(t *testing.T) {
	runner := workflow.NewRunner(answerRunner("42", 0), workflow.DefaultRunnerConfig())
	cfg := testEngineConfig()
	cfg.SimilarityThreshold = 0.9
	engine := NewEngine(cfg, runner, NewEvaluator(Weights{Score: 1}, 0, 0),
		&DummyOperator{}, ExactMatchScorer)

	// Seed with identical genomes so the dummy operator's offspring
	// are exact duplicates of each other.
	var seed []*Genome
	for i := 0; i < 4; i++ {
		g, err := WrapGraph(workflow.NewValidator(), linearGraph("Answer with just the number."), EvolutionContext{})
		require.NoError(t, err)
		seed = append(seed, g)
	}

	report, err := engine.Evolve(context.Background(), "run-prune", testCases(), seed)
	require.NoError(t, err)
	require.Len(t, report.Generations, 3)

	pruned := 0
	for _, gen := range report.Generations {
		pruned += gen.PrunedForSimilarity
	}
	assert.Greater(t, pruned, 0)
	// Later generations collapse toward a single representative.
	last := report.Generations[len(report.Generations)-1]
	assert.Less(t, last.Stats.Size, 4)
}
