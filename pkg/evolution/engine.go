package evolution

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
	"github.com/evoflow-ai/evoflow-go/pkg/metrics"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// EvaluationCase is one task a candidate workflow is scored against.
type EvaluationCase struct {
	Input    any
	Expected any
}

// Scorer grades one finished run against its case, returning accuracy
// in [0,1]. Implementations must tolerate empty output lists.
type Scorer func(tc EvaluationCase, outputs []any) float64

// ExactMatchScorer scores 1 when any delivered output matches the
// expected value, 0 otherwise.
func ExactMatchScorer(tc EvaluationCase, outputs []any) float64 {
	return bestOutputScore(tc, outputs, metrics.ExactMatch)
}

// F1Scorer grades the best delivered output by token-level F1 overlap
// with the expected value, giving partial credit for free-form answers.
func F1Scorer(tc EvaluationCase, outputs []any) float64 {
	return bestOutputScore(tc, outputs, metrics.TokenF1)
}

// ContainsScorer accepts any output that mentions the expected answer.
func ContainsScorer(tc EvaluationCase, outputs []any) float64 {
	return bestOutputScore(tc, outputs, metrics.Contains)
}

func bestOutputScore(tc EvaluationCase, outputs []any, grade func(expected, actual string) float64) float64 {
	want := fmt.Sprint(tc.Expected)
	best := 0.0
	for _, out := range outputs {
		if score := grade(want, fmt.Sprint(out)); score > best {
			best = score
		}
	}
	return best
}

// EngineConfig are the knobs of one evolution run.
type EngineConfig struct {
	PopulationSize int
	Generations    int

	// NewNodeProbability is the chance an offspring attempt uses the
	// structural operator instead of the refining one.
	NewNodeProbability float64

	// TournamentSize is how many genomes compete per parent selection.
	TournamentSize int

	// CrossoverProbability is the chance an offspring comes from two
	// parents instead of one. Zero disables crossover.
	CrossoverProbability float64

	// SimilarityThreshold prunes near-duplicate genomes after each
	// generation. Zero disables pruning.
	SimilarityThreshold float64

	// MaxDuration bounds the whole evolution run. Zero means no limit.
	MaxDuration time.Duration

	// EvalParallelism bounds concurrent genome evaluations. Defaults
	// to 4.
	EvalParallelism int

	// Models seeds random genomes. Required when the engine has to
	// create the initial population itself.
	Models []string

	// Rand supplies determinism for tests.
	Rand *rand.Rand
}

func (c *EngineConfig) withDefaults() EngineConfig {
	cfg := *c
	if cfg.PopulationSize <= 0 {
		cfg.PopulationSize = 8
	}
	if cfg.Generations <= 0 {
		cfg.Generations = 5
	}
	if cfg.TournamentSize <= 0 {
		cfg.TournamentSize = 3
	}
	if cfg.EvalParallelism <= 0 {
		cfg.EvalParallelism = 4
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return cfg
}

// GenerationReport summarizes one finished generation.
type GenerationReport struct {
	Number              int     `json:"number"`
	Stats               *Stats  `json:"stats"`
	BestVersionID       string  `json:"bestVersionId"`
	OffspringProduced   int     `json:"offspringProduced"`
	MutationFailures    int     `json:"mutationFailures"`
	PrunedForSimilarity int     `json:"prunedForSimilarity"`
	GenerationCostUSD   float64 `json:"generationCostUsd"`
}

// EvolutionReport is the outcome of a whole evolution run.
type EvolutionReport struct {
	RunID        string                `json:"runId"`
	Generations  []GenerationReport    `json:"generations"`
	Best         *Genome               `json:"-"`
	BestVersion  *core.WorkflowVersion `json:"bestVersion"`
	TotalCostUSD float64               `json:"totalCostUsd"`
	Duration     time.Duration         `json:"duration"`
	StopReason   string                `json:"stopReason"`
}

// Engine drives the generation loop: seed, evaluate, select, mutate,
// prune, repeat until a budget is exhausted. One engine instance owns
// its population; nothing else mutates it.
type Engine struct {
	cfg        EngineConfig
	runner     *workflow.Runner
	evaluator  *Evaluator
	structural Operator
	refining   Operator
	crossover  *CrossoverOperator
	scorer     Scorer
	budget     *workflow.Budget
	store      core.Store
	logger     *logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCrossover enables two-parent recombination.
func WithCrossover(op *CrossoverOperator) EngineOption {
	return func(e *Engine) { e.crossover = op }
}

// WithRefiningOperator sets the operator used when an offspring attempt
// refines existing structure instead of introducing new nodes. Defaults
// to the structural operator.
func WithRefiningOperator(op Operator) EngineOption {
	return func(e *Engine) { e.refining = op }
}

// WithEngineStore persists every genome's workflow version as it is
// created.
func WithEngineStore(s core.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithEngineBudget attaches a shared cost ceiling. Pass the same Budget
// to the runner so execution and mutation spend from one pool.
func WithEngineBudget(b *workflow.Budget) EngineOption {
	return func(e *Engine) { e.budget = b }
}

// WithEngineLogger overrides the default logger.
func WithEngineLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine assembles an evolution engine. The runner executes candidate
// graphs, the operator produces offspring and the scorer grades run
// outputs.
func NewEngine(cfg EngineConfig, runner *workflow.Runner, evaluator *Evaluator, operator Operator, scorer Scorer, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		runner:     runner,
		evaluator:  evaluator,
		structural: operator,
		refining:   operator,
		scorer:     scorer,
		logger:     logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evolve runs the generation loop against the evaluation cases and
// returns a report. Budget and mutation failures never abort the loop;
// they stop it early with the partial report preserved. Evolve returns
// a Go error only when the run cannot start at all.
func (e *Engine) Evolve(ctx context.Context, runID string, cases []EvaluationCase, seed []*Genome) (*EvolutionReport, error) {
	if len(cases) == 0 {
		return nil, errors.New(errors.InvalidInput, "evolution requires at least one evaluation case")
	}
	if runID == "" {
		runID = core.NewRunID()
	}
	started := time.Now()

	report := &EvolutionReport{RunID: runID}
	population := NewPopulation(runID, 0)
	population.SetPopulation(seed)
	if err := e.seedPopulation(ctx, population); err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if e.cfg.MaxDuration > 0 {
		deadline = started.Add(e.cfg.MaxDuration)
	}

	stop := ""
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := errors.CheckContext(ctx, "evolution run"); err != nil {
			stop = "cancelled"
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			stop = "time budget exhausted"
			break
		}
		if e.budget != nil && e.budget.Exceeded() {
			stop = "cost budget exhausted"
			break
		}

		genReport := GenerationReport{Number: gen}
		genReport.GenerationCostUSD += e.evaluatePopulation(ctx, population, cases)

		stats, err := population.GetStats()
		if err != nil {
			return nil, err
		}
		genReport.Stats = stats
		if best, bestErr := population.Best(); bestErr == nil {
			genReport.BestVersionID = best.WorkflowVersionID()
		}
		e.logger.Info(ctx, "generation %d: best=%.2f avg=%.2f diversity=%.2f size=%d",
			gen, stats.BestFitness, stats.AvgFitness, stats.Diversity, stats.Size)

		if gen == e.cfg.Generations-1 {
			report.Generations = append(report.Generations, genReport)
			stop = "generation budget exhausted"
			break
		}

		next, cost, failures := e.produceOffspring(ctx, population, gen+1)
		genReport.GenerationCostUSD += cost
		genReport.MutationFailures = failures
		genReport.OffspringProduced = next.Size()

		if e.cfg.SimilarityThreshold > 0 {
			genReport.PrunedForSimilarity = next.PruneSimilar(e.cfg.SimilarityThreshold)
		}
		report.Generations = append(report.Generations, genReport)

		if e.budget != nil && e.budget.Exceeded() {
			// Offspring spending crossed the line; evaluate nothing
			// further and report against the last scored population.
			stop = "cost budget exhausted"
			break
		}
		population = next
	}
	if stop == "" {
		stop = "generation budget exhausted"
	}

	report.StopReason = stop
	report.Duration = time.Since(started)
	if e.budget != nil {
		report.TotalCostUSD = e.budget.SpentUSD()
	} else {
		for _, g := range report.Generations {
			report.TotalCostUSD += g.GenerationCostUSD
		}
	}
	if best, err := population.Best(); err == nil {
		report.Best = best
		report.BestVersion = best.Version()
	}
	return report, nil
}

func (e *Engine) seedPopulation(ctx context.Context, population *Population) error {
	for population.Size() < e.cfg.PopulationSize {
		genome, err := CreateRandom(RandomGenomeConfig{
			Models: e.cfg.Models,
			Rand:   e.cfg.Rand,
		}, EvolutionContext{RunID: population.RunID(), GenerationNumber: 0})
		if err != nil {
			return err
		}
		population.AddGenome(genome)
	}
	for _, genome := range population.Genomes() {
		e.persistGenome(ctx, genome)
	}
	return nil
}

// evaluatePopulation scores every unevaluated genome concurrently and
// returns the cost incurred. Each genome runs all cases sequentially;
// parallelism is across genomes.
func (e *Engine) evaluatePopulation(ctx context.Context, population *Population, cases []EvaluationCase) float64 {
	pending := population.Unevaluated()
	if len(pending) == 0 {
		return 0
	}

	var mu sync.Mutex
	var totalCost float64

	p := pool.New().WithMaxGoroutines(e.cfg.EvalParallelism)
	for _, genome := range pending {
		genome := genome
		p.Go(func() {
			raw, feedback := e.evaluateGenome(ctx, genome, cases)
			fitness := e.evaluator.Compute(raw)
			if err := genome.SetFitnessAndFeedback(fitness, feedback); err != nil {
				e.logger.Warn(ctx, "genome %s: %v", genome.WorkflowVersionID(), err)
			}
			mu.Lock()
			totalCost += raw.TotalCostUSD
			mu.Unlock()
		})
	}
	p.Wait()
	return totalCost
}

func (e *Engine) evaluateGenome(ctx context.Context, genome *Genome, cases []EvaluationCase) (RawResult, string) {
	graph := genome.Graph()
	started := time.Now()

	var accuracySum, cost float64
	completed := true
	var notes []string
	for _, tc := range cases {
		if err := errors.CheckContext(ctx, "genome evaluation"); err != nil {
			completed = false
			notes = append(notes, "evaluation cancelled")
			break
		}
		result := e.runner.Execute(ctx, graph, tc.Input)
		cost += result.TotalCostUSD
		if result.Status != core.RunCompleted {
			completed = false
			if result.Err != nil {
				notes = append(notes, fmt.Sprintf("run %s %s: %v", result.RunID, result.Status, result.Err))
			} else {
				notes = append(notes, fmt.Sprintf("run %s %s", result.RunID, result.Status))
			}
			continue
		}
		accuracySum += e.scorer(tc, result.Outputs)
	}

	raw := RawResult{
		Accuracy:     accuracySum / float64(len(cases)),
		TotalCostUSD: cost,
		Duration:     time.Since(started),
		Completed:    completed,
	}
	return raw, strings.Join(notes, "\n")
}

// produceOffspring builds the next generation: the best genome survives
// unchanged, the rest are offspring of tournament-selected parents.
func (e *Engine) produceOffspring(ctx context.Context, population *Population, generationNumber int) (*Population, float64, int) {
	next := NewPopulation(population.RunID(), generationNumber)
	var cost float64
	failures := 0

	if elite, err := population.Best(); err == nil {
		next.AddGenome(elite)
	}

	for next.Size() < e.cfg.PopulationSize {
		if err := errors.CheckContext(ctx, "offspring production"); err != nil {
			break
		}
		if e.budget != nil && e.budget.Exceeded() {
			break
		}

		outcome := e.breedOne(ctx, population, generationNumber)
		cost += outcome.UsdCost
		if e.budget != nil && outcome.UsdCost > 0 {
			if err := e.budget.Charge(outcome.UsdCost); err != nil {
				e.logger.Warn(ctx, "offspring attempt exhausted budget: %v", err)
			}
		}

		if !outcome.Success {
			failures++
			e.logger.Debug(ctx, "mutation failed: %s", outcome.Error)
			// A failed attempt produces no offspring; carry the parent
			// forward unchanged so the generation still fills up.
			parent := e.selectParent(population)
			if parent == nil {
				break
			}
			copyGenome := NewGenome(parent.Graph(), []string{parent.WorkflowVersionID()},
				EvolutionContext{RunID: population.RunID(), GenerationNumber: generationNumber})
			e.persistGenome(ctx, copyGenome)
			next.AddGenome(copyGenome)
			continue
		}

		e.persistGenome(ctx, outcome.Genome)
		next.AddGenome(outcome.Genome)
	}
	return next, cost, failures
}

func (e *Engine) breedOne(ctx context.Context, population *Population, generationNumber int) MutationOutcome {
	parent := e.selectParent(population)
	if parent == nil {
		return mutationFailure("no parent available for selection", 0)
	}

	if e.crossover != nil && e.cfg.CrossoverProbability > 0 &&
		e.cfg.Rand.Float64() < e.cfg.CrossoverProbability {
		if other := e.selectParent(population); other != nil && other != parent {
			return e.crossover.Crossover(ctx, CrossoverRequest{
				ParentA:          parent,
				ParentB:          other,
				GenerationNumber: generationNumber,
			})
		}
	}

	op := e.refining
	if e.cfg.Rand.Float64() < e.cfg.NewNodeProbability {
		op = e.structural
	}
	return op.Mutate(ctx, MutationRequest{Parent: parent, GenerationNumber: generationNumber})
}

// selectParent runs one fitness tournament over the current population.
func (e *Engine) selectParent(population *Population) *Genome {
	genomes := population.Genomes()
	if len(genomes) == 0 {
		return nil
	}
	best := genomes[e.cfg.Rand.Intn(len(genomes))]
	for i := 1; i < e.cfg.TournamentSize; i++ {
		candidate := genomes[e.cfg.Rand.Intn(len(genomes))]
		if candidate.FitnessScore() > best.FitnessScore() {
			best = candidate
		}
	}
	return best
}

func (e *Engine) persistGenome(ctx context.Context, genome *Genome) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveWorkflowVersion(ctx, genome.Version()); err != nil {
		// Persistence is an event log; losing one record must not stop
		// the run.
		e.logger.Warn(ctx, "persist genome %s: %v", genome.WorkflowVersionID(), err)
	}
}
