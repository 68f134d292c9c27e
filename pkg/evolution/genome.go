package evolution

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// EvolutionContext ties a genome to the evolution run that produced it.
type EvolutionContext struct {
	RunID            string `json:"runId"`
	GenerationNumber int    `json:"generationNumber"`
}

// Genome is a candidate workflow graph plus lineage and fitness, the
// unit of evolutionary selection. The wrapped graph is immutable once
// the genome exists; derived graphs become new genomes with extended
// lineage. Fitness is attached exactly once after evaluation.
type Genome struct {
	workflowVersionID string
	graph             *core.WorkflowGraph
	parentVersionIDs  []string
	createdAt         time.Time
	context           EvolutionContext

	mu       sync.RWMutex
	fitness  *FitnessResult
	feedback string
}

// NewGenome wraps an already-validated graph. Mutation and crossover
// operators call this after running the validator themselves.
func NewGenome(graph *core.WorkflowGraph, parentVersionIDs []string, evoCtx EvolutionContext) *Genome {
	return &Genome{
		workflowVersionID: core.NewVersionID(),
		graph:             graph.Clone(),
		parentVersionIDs:  append([]string(nil), parentVersionIDs...),
		createdAt:         time.Now().UTC(),
		context:           evoCtx,
	}
}

// WrapGraph validates a user-submitted graph and wraps it as a
// first-generation genome.
func WrapGraph(validator *workflow.Validator, graph *core.WorkflowGraph, evoCtx EvolutionContext) (*Genome, error) {
	if err := validator.ValidateStrict(graph); err != nil {
		return nil, err
	}
	return NewGenome(graph, nil, evoCtx), nil
}

// RandomGenomeConfig controls CreateRandom.
type RandomGenomeConfig struct {
	// Models to draw node models from. Required.
	Models []string

	// MaxWorkers bounds the number of worker nodes (beyond the entry
	// node). Defaults to 3.
	MaxWorkers int

	// Rand supplies determinism for tests. Defaults to a time-seeded
	// source.
	Rand *rand.Rand
}

var randomPrompts = []string{
	"Break the task into concrete steps and solve each one in order.",
	"Solve the task directly and state the final answer clearly.",
	"Review the work so far, point out mistakes, and produce a corrected answer.",
	"Summarize the findings into a short final response.",
	"Analyze the task, list what information is needed, then answer.",
}

// CreateRandom builds a small random linear workflow genome: an entry
// node handing off through zero or more workers to the end sentinel.
func CreateRandom(cfg RandomGenomeConfig, evoCtx EvolutionContext) (*Genome, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New(errors.InvalidInput, "random genome requires at least one model")
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	workers := rng.Intn(maxWorkers + 1)
	nodes := make([]*core.Node, 0, workers+1)

	pick := func() (string, string) {
		return randomPrompts[rng.Intn(len(randomPrompts))], cfg.Models[rng.Intn(len(cfg.Models))]
	}

	next := core.EndNodeID
	for i := workers; i >= 1; i-- {
		prompt, model := pick()
		id := fmt.Sprintf("worker-%d", i)
		nodes = append([]*core.Node{{
			NodeID:       id,
			Description:  "generated worker node",
			SystemPrompt: prompt,
			ModelName:    model,
			HandOffs:     []string{next},
		}}, nodes...)
		next = id
	}

	prompt, model := pick()
	entry := &core.Node{
		NodeID:       "entry",
		Description:  "generated entry node",
		SystemPrompt: prompt,
		ModelName:    model,
		HandOffs:     []string{next},
	}
	nodes = append([]*core.Node{entry}, nodes...)

	graph := &core.WorkflowGraph{EntryNodeID: "entry", Nodes: nodes}
	return NewGenome(graph, nil, evoCtx), nil
}

// WorkflowVersionID returns the genome's persistent identifier.
func (g *Genome) WorkflowVersionID() string { return g.workflowVersionID }

// Graph returns a deep copy of the wrapped graph; callers may mutate it
// freely while constructing offspring.
func (g *Genome) Graph() *core.WorkflowGraph { return g.graph.Clone() }

// ParentVersionIDs returns the lineage, oldest first.
func (g *Genome) ParentVersionIDs() []string {
	return append([]string(nil), g.parentVersionIDs...)
}

func (g *Genome) CreatedAt() time.Time      { return g.createdAt }
func (g *Genome) Context() EvolutionContext { return g.context }
func (g *Genome) NodeCount() int            { return len(g.graph.Nodes) }

// IsEvaluated reports whether fitness has been attached.
func (g *Genome) IsEvaluated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fitness != nil
}

// Fitness returns the attached fitness result, or nil before
// evaluation.
func (g *Genome) Fitness() *FitnessResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.fitness == nil {
		return nil
	}
	f := *g.fitness
	return &f
}

// FitnessScore returns the scalar score, or zero before evaluation.
func (g *Genome) FitnessScore() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.fitness == nil {
		return 0
	}
	return g.fitness.Score
}

// Feedback returns the textual evaluation feedback used to steer
// LLM-guided mutation.
func (g *Genome) Feedback() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feedback
}

// SetFitnessAndFeedback attaches the evaluation outcome. Genomes are
// write-once: a second call is a logic error.
func (g *Genome) SetFitnessAndFeedback(fitness FitnessResult, feedback string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fitness != nil {
		return errors.WithFields(
			errors.New(errors.InvalidWorkflowState, "genome is already evaluated"),
			errors.Fields{"workflow_version_id": g.workflowVersionID})
	}
	f := fitness
	g.fitness = &f
	g.feedback = feedback
	return nil
}

// Version renders the genome as a persistable workflow version record.
func (g *Genome) Version() *core.WorkflowVersion {
	return &core.WorkflowVersion{
		WorkflowVersionID: g.workflowVersionID,
		Graph:             g.Graph(),
		ParentVersionIDs:  g.ParentVersionIDs(),
		RunID:             g.context.RunID,
		GenerationNumber:  g.context.GenerationNumber,
		CreatedAt:         g.createdAt,
	}
}
