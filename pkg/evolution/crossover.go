package evolution

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// CrossoverRequest asks for a child recombined from two parents.
type CrossoverRequest struct {
	ParentA          *Genome
	ParentB          *Genome
	GenerationNumber int
}

// CrossoverOperator recombines two parent genomes. It shares the
// structured failure contract of Operator: no Go errors for model or
// validation failures, and the child's lineage names both parents.
type CrossoverOperator struct {
	Validator *workflow.Validator
	Rand      *rand.Rand
}

func NewCrossoverOperator(validator *workflow.Validator, rng *rand.Rand) *CrossoverOperator {
	if validator == nil {
		validator = workflow.NewValidator()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &CrossoverOperator{Validator: validator, Rand: rng}
}

// Crossover keeps parent A's structure and, for every node id both
// parents share, takes the prompt and model from a randomly chosen
// parent. Structure-level recombination of arbitrary graphs rarely
// survives validation, so content mixing over a proven topology is the
// whole strategy here.
func (o *CrossoverOperator) Crossover(_ context.Context, req CrossoverRequest) MutationOutcome {
	if req.ParentA == nil || req.ParentB == nil {
		return mutationFailure("crossover requires two parent genomes", 0)
	}
	if req.ParentA.NodeCount() == 0 || req.ParentB.NodeCount() == 0 {
		return mutationFailure("crossover parent genome has no nodes", 0)
	}

	graph := req.ParentA.Graph()
	other := req.ParentB.Graph()
	mixed := 0
	for _, node := range graph.Nodes {
		counterpart := findCounterpart(other, node)
		if counterpart == nil {
			continue
		}
		if o.Rand.Intn(2) == 1 {
			node.SystemPrompt = counterpart.SystemPrompt
			node.ModelName = counterpart.ModelName
			mixed++
		}
	}
	if mixed == 0 && len(graph.Nodes) > 0 {
		// Force at least one gene exchange so the child differs from
		// parent A whenever the parents overlap at all.
		for _, node := range graph.Nodes {
			if counterpart := findCounterpart(other, node); counterpart != nil {
				node.SystemPrompt = counterpart.SystemPrompt
				node.ModelName = counterpart.ModelName
				break
			}
		}
	}

	if err := o.Validator.ValidateStrict(graph); err != nil {
		return mutationFailure(fmt.Sprintf("crossover graph failed validation: %v", err), 0)
	}

	child := NewGenome(graph,
		[]string{req.ParentA.WorkflowVersionID(), req.ParentB.WorkflowVersionID()},
		EvolutionContext{
			RunID:            req.ParentA.Context().RunID,
			GenerationNumber: req.GenerationNumber,
		})
	return MutationOutcome{Success: true, Genome: child}
}

func findCounterpart(graph *core.WorkflowGraph, node *core.Node) *core.Node {
	return graph.NodeByID(node.NodeID)
}
