package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// MutationRequest asks an operator for one child genome.
type MutationRequest struct {
	Parent           *Genome
	GenerationNumber int
}

// MutationOutcome is the structured result of one mutation attempt.
// Operators never return a Go error for model-side or validation
// failures; a failed attempt carries Success=false, a human-readable
// Error, and whatever gateway cost was incurred before the failure.
type MutationOutcome struct {
	Success bool
	Genome  *Genome
	Error   string
	UsdCost float64
}

// Operator derives a child genome from one parent. Implementations
// validate the child graph before wrapping it; a genome returned with
// Success=true is always executable.
type Operator interface {
	Mutate(ctx context.Context, req MutationRequest) MutationOutcome
}

func mutationFailure(msg string, cost float64) MutationOutcome {
	return MutationOutcome{Success: false, Error: msg, UsdCost: cost}
}

// checkParent enforces the shared operator precondition: a parent with
// no nodes cannot seed a child.
func checkParent(req MutationRequest) (MutationOutcome, bool) {
	if req.Parent == nil {
		return mutationFailure("mutation requires a parent genome", 0), false
	}
	if req.Parent.NodeCount() == 0 {
		return mutationFailure("parent genome has no nodes to mutate", 0), false
	}
	return MutationOutcome{}, true
}

// DummyOperator is the deterministic, zero-cost operator used in tests
// and dry runs. It appends a fixed marker to every node's system
// prompt, which keeps the graph structure valid by construction.
type DummyOperator struct {
	Validator *workflow.Validator
}

func (o *DummyOperator) Mutate(_ context.Context, req MutationRequest) MutationOutcome {
	if outcome, ok := checkParent(req); !ok {
		return outcome
	}

	graph := req.Parent.Graph()
	for _, node := range graph.Nodes {
		node.SystemPrompt = node.SystemPrompt + " Be concise."
	}

	validator := o.Validator
	if validator == nil {
		validator = workflow.NewValidator()
	}
	if err := validator.ValidateStrict(graph); err != nil {
		return mutationFailure(fmt.Sprintf("mutated graph failed validation: %v", err), 0)
	}

	child := NewGenome(graph, []string{req.Parent.WorkflowVersionID()}, EvolutionContext{
		RunID:            req.Parent.Context().RunID,
		GenerationNumber: req.GenerationNumber,
	})
	return MutationOutcome{Success: true, Genome: child}
}

// mutationSchema constrains the structured gateway response to a single
// graph operation.
var mutationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"operation": map[string]any{
			"type": "string",
			"enum": []string{"addNode", "removeNode", "modifyNode", "doNothing"},
		},
		"targetNodeId": map[string]any{"type": "string"},
		"node": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nodeId":       map[string]any{"type": "string"},
				"description":  map[string]any{"type": "string"},
				"systemPrompt": map[string]any{"type": "string"},
				"modelName":    map[string]any{"type": "string"},
				"handOffs":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"reasoning": map[string]any{"type": "string"},
	},
	"required": []string{"operation"},
}

// LLMGuidedOperator asks a model for one structural edit to the parent
// graph, applies it, and validates the result. All gateway cost is
// reported in the outcome whether or not the attempt succeeded.
type LLMGuidedOperator struct {
	Gateway   core.Gateway
	Validator *workflow.Validator
	Model     string
	Logger    *logging.Logger
}

func NewLLMGuidedOperator(gateway core.Gateway, validator *workflow.Validator, model string, logger *logging.Logger) *LLMGuidedOperator {
	if validator == nil {
		validator = workflow.NewValidator()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &LLMGuidedOperator{Gateway: gateway, Validator: validator, Model: model, Logger: logger}
}

func (o *LLMGuidedOperator) Mutate(ctx context.Context, req MutationRequest) MutationOutcome {
	if outcome, ok := checkParent(req); !ok {
		return outcome
	}

	prompt, err := o.describeParent(req.Parent)
	if err != nil {
		return mutationFailure(fmt.Sprintf("cannot describe parent graph: %v", err), 0)
	}

	result, err := o.Gateway.SendAI(ctx, core.AIRequest{
		Model:  o.Model,
		Mode:   core.ModeStructured,
		Schema: mutationSchema,
		Messages: []core.AIMessage{
			{Role: "system", Content: mutationSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return mutationFailure(fmt.Sprintf("mutation gateway call failed: %v", err), result.UsdCost)
	}
	if !result.Success {
		return mutationFailure("mutation model call failed: "+result.Error, result.UsdCost)
	}
	if result.Data == nil {
		return mutationFailure("mutation model returned no parseable operation", result.UsdCost)
	}

	graph, applyErr := o.applyOperation(req.Parent.Graph(), result.Data)
	if applyErr != nil {
		return mutationFailure(applyErr.Error(), result.UsdCost)
	}

	if err := o.Validator.ValidateStrict(graph); err != nil {
		o.Logger.Debug(ctx, "mutation produced invalid graph: %v", err)
		return mutationFailure(fmt.Sprintf("mutated graph failed validation: %v", err), result.UsdCost)
	}

	child := NewGenome(graph, []string{req.Parent.WorkflowVersionID()}, EvolutionContext{
		RunID:            req.Parent.Context().RunID,
		GenerationNumber: req.GenerationNumber,
	})
	return MutationOutcome{Success: true, Genome: child, UsdCost: result.UsdCost}
}

const mutationSystemPrompt = `You improve AI workflow graphs. Given a workflow and its ` +
	`evaluation feedback, propose exactly one operation: addNode, removeNode, ` +
	`modifyNode, or doNothing. New or modified nodes must hand off to existing ` +
	`node ids or to "end". Keep prompts specific to the task.`

func (o *LLMGuidedOperator) describeParent(parent *Genome) (string, error) {
	graphJSON, err := json.MarshalIndent(parent.Graph(), "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Current workflow graph:\n")
	sb.Write(graphJSON)
	if fitness := parent.Fitness(); fitness != nil {
		fmt.Fprintf(&sb, "\n\nFitness score: %.2f (accuracy %.2f, cost $%.4f, %.1fs)",
			fitness.Score, fitness.Accuracy, fitness.TotalCostUSD, fitness.TotalTimeSeconds)
	}
	if feedback := parent.Feedback(); feedback != "" {
		sb.WriteString("\n\nEvaluation feedback:\n")
		sb.WriteString(feedback)
	}
	sb.WriteString("\n\nReturn one operation that is most likely to improve the score.")
	return sb.String(), nil
}

// applyOperation edits the (already cloned) graph in place per the
// model's structured response.
func (o *LLMGuidedOperator) applyOperation(graph *core.WorkflowGraph, data map[string]any) (*core.WorkflowGraph, error) {
	operation, _ := data["operation"].(string)
	switch operation {
	case "doNothing":
		return graph, nil

	case "addNode":
		node, err := decodeNode(data["node"])
		if err != nil {
			return nil, fmt.Errorf("addNode: %w", err)
		}
		if graph.NodeByID(node.NodeID) != nil {
			return nil, fmt.Errorf("addNode: node %q already exists", node.NodeID)
		}
		// Splice the new node in front of the end sentinel on every
		// branch that currently terminates, so it stays reachable.
		for _, existing := range graph.Nodes {
			for i, target := range existing.HandOffs {
				if target == core.EndNodeID {
					existing.HandOffs[i] = node.NodeID
				}
			}
		}
		if len(node.HandOffs) == 0 {
			node.HandOffs = []string{core.EndNodeID}
		}
		graph.Nodes = append(graph.Nodes, node)
		return graph, nil

	case "removeNode":
		targetID, _ := data["targetNodeId"].(string)
		if targetID == "" {
			return nil, fmt.Errorf("removeNode: missing targetNodeId")
		}
		if targetID == graph.EntryNodeID {
			return nil, fmt.Errorf("removeNode: cannot remove the entry node %q", targetID)
		}
		target := graph.NodeByID(targetID)
		if target == nil {
			return nil, fmt.Errorf("removeNode: node %q not found", targetID)
		}
		// Reroute inbound handoffs to the removed node's successors.
		successors := target.HandOffs
		if len(successors) == 0 {
			successors = []string{core.EndNodeID}
		}
		kept := graph.Nodes[:0]
		for _, node := range graph.Nodes {
			if node.NodeID == targetID {
				continue
			}
			node.HandOffs = reroute(node.HandOffs, targetID, successors)
			node.WaitFor = dropID(node.WaitFor, targetID)
			kept = append(kept, node)
		}
		graph.Nodes = kept
		return graph, nil

	case "modifyNode":
		node, err := decodeNode(data["node"])
		if err != nil {
			return nil, fmt.Errorf("modifyNode: %w", err)
		}
		existing := graph.NodeByID(node.NodeID)
		if existing == nil {
			return nil, fmt.Errorf("modifyNode: node %q not found", node.NodeID)
		}
		if node.Description != "" {
			existing.Description = node.Description
		}
		if node.SystemPrompt != "" {
			existing.SystemPrompt = node.SystemPrompt
		}
		if node.ModelName != "" {
			existing.ModelName = node.ModelName
		}
		if len(node.HandOffs) > 0 {
			existing.HandOffs = node.HandOffs
		}
		return graph, nil

	default:
		return nil, fmt.Errorf("unknown mutation operation %q", operation)
	}
}

func decodeNode(raw any) (*core.Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing node object")
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var node core.Node
	if err := json.Unmarshal(encoded, &node); err != nil {
		return nil, fmt.Errorf("malformed node object: %w", err)
	}
	if node.NodeID == "" {
		return nil, fmt.Errorf("node object is missing nodeId")
	}
	return &node, nil
}

func reroute(handoffs []string, removed string, successors []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, target := range handoffs {
		if target == removed {
			for _, s := range successors {
				add(s)
			}
		} else {
			add(target)
		}
	}
	return out
}

func dropID(ids []string, removed string) []string {
	var out []string
	for _, id := range ids {
		if id != removed {
			out = append(out, id)
		}
	}
	return out
}

// PromptShuffleOperator is a cheap structural operator that reorders
// generated prompts without gateway calls, used when the engine decides
// against introducing new structure.
type PromptShuffleOperator struct {
	Validator *workflow.Validator
	Rand      *rand.Rand
}

func (o *PromptShuffleOperator) Mutate(_ context.Context, req MutationRequest) MutationOutcome {
	if outcome, ok := checkParent(req); !ok {
		return outcome
	}

	graph := req.Parent.Graph()
	rng := o.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(len(graph.Nodes))))
	}
	target := graph.Nodes[rng.Intn(len(graph.Nodes))]
	target.SystemPrompt = randomPrompts[rng.Intn(len(randomPrompts))]

	validator := o.Validator
	if validator == nil {
		validator = workflow.NewValidator()
	}
	if err := validator.ValidateStrict(graph); err != nil {
		return mutationFailure(fmt.Sprintf("mutated graph failed validation: %v", err), 0)
	}

	child := NewGenome(graph, []string{req.Parent.WorkflowVersionID()}, EvolutionContext{
		RunID:            req.Parent.Context().RunID,
		GenerationNumber: req.GenerationNumber,
	})
	return MutationOutcome{Success: true, Genome: child}
}
