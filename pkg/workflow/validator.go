package workflow

import (
	"fmt"
	"strings"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// ValidationResult collects every problem found in one pass so callers
// can display all of them at once.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithToolCatalog enables tool-activity checks.
func WithToolCatalog(catalog core.ToolCatalog) ValidatorOption {
	return func(v *Validator) { v.tools = catalog }
}

// WithModelCatalog enables model resolution checks.
func WithModelCatalog(catalog core.ModelCatalog) ValidatorOption {
	return func(v *Validator) { v.models = catalog }
}

// WithMaxToolsPerAgent bounds each node's tool set. Zero disables the check.
func WithMaxToolsPerAgent(n int) ValidatorOption {
	return func(v *Validator) { v.maxToolsPerAgent = n }
}

// WithUniqueTools requires each node's tool set to be duplicate-free.
func WithUniqueTools(enabled bool) ValidatorOption {
	return func(v *Validator) { v.uniqueTools = enabled }
}

// Validator checks a workflow graph before it may run or be persisted.
// It is pure: no side effects beyond the returned result.
type Validator struct {
	tools            core.ToolCatalog
	models           core.ModelCatalog
	maxToolsPerAgent int
	uniqueTools      bool
}

// NewValidator creates a graph validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the full battery of checks, concatenating all errors
// found rather than short-circuiting on the first failure.
func (v *Validator) Validate(graph *core.WorkflowGraph) *ValidationResult {
	result := &ValidationResult{}

	if graph == nil {
		result.addError("graph is nil")
		return result.finish()
	}
	if len(graph.Nodes) == 0 {
		result.addError("graph must contain at least one node")
		return result.finish()
	}

	v.checkNodes(graph, result)
	v.checkEntry(graph, result)
	v.checkHandoffs(graph, result)
	v.checkWaitFor(graph, result)

	// Traversal checks only make sense once references resolve.
	if len(result.Errors) == 0 {
		v.checkReachability(graph, result)
		v.checkPathToEnd(graph, result)
		if graph.AllowCycles {
			v.verifyHierarchicalStructure(graph, result)
		} else {
			v.checkAcyclic(graph, result)
		}
	}

	if len(graph.Nodes) == 1 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("graph has a single node %q; handoff and join semantics are degenerate", graph.Nodes[0].NodeID))
	}

	return result.finish()
}

// ValidateStrict converts a failing result into a raised error. The
// non-throwing Validate path is the primary one.
func (v *Validator) ValidateStrict(graph *core.WorkflowGraph) error {
	result := v.Validate(graph)
	if result.IsValid {
		return nil
	}
	return errors.WithFields(
		errors.New(errors.ValidationFailed, "workflow graph validation failed"),
		errors.Fields{"errors": strings.Join(result.Errors, "; ")},
	)
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) finish() *ValidationResult {
	r.IsValid = len(r.Errors) == 0
	return r
}

// checkNodes validates per-node structural well-formedness, tool sets
// and model references.
func (v *Validator) checkNodes(graph *core.WorkflowGraph, result *ValidationResult) {
	seen := make(map[string]bool, len(graph.Nodes))

	for _, node := range graph.Nodes {
		if node == nil {
			result.addError("graph contains a nil node")
			continue
		}
		if node.NodeID == "" {
			result.addError("node with empty nodeId")
			continue
		}
		if node.NodeID == core.EndNodeID {
			result.addError("node %q shadows the end sentinel", node.NodeID)
		}
		if seen[node.NodeID] {
			result.addError("duplicate nodeId %q", node.NodeID)
		}
		seen[node.NodeID] = true

		if node.SystemPrompt == "" {
			result.addError("node %q has an empty system prompt", node.NodeID)
		}
		if node.ModelName == "" {
			result.addError("node %q has no model", node.NodeID)
		} else if v.models != nil {
			entry := v.models.GetModelEntry(node.ModelName)
			switch {
			case entry == nil:
				result.addError("node %q references unknown model %q", node.NodeID, node.ModelName)
			case !entry.Active:
				result.addError("node %q references inactive model %q", node.NodeID, node.ModelName)
			}
		}

		v.checkNodeTools(node, result)
	}
}

func (v *Validator) checkNodeTools(node *core.Node, result *ValidationResult) {
	if v.maxToolsPerAgent > 0 && len(node.Tools) > v.maxToolsPerAgent {
		result.addError("node %q declares %d tools, limit is %d",
			node.NodeID, len(node.Tools), v.maxToolsPerAgent)
	}

	seen := make(map[string]bool, len(node.Tools))
	for _, tool := range node.Tools {
		if v.uniqueTools && seen[tool] {
			result.addError("node %q declares tool %q more than once", node.NodeID, tool)
		}
		seen[tool] = true

		if v.tools != nil && !v.tools.IsToolActive(tool) {
			result.addError("node %q references inactive tool %q", node.NodeID, tool)
		}
	}
}

func (v *Validator) checkEntry(graph *core.WorkflowGraph, result *ValidationResult) {
	if graph.EntryNodeID == "" {
		result.addError("entryNodeId is empty")
		return
	}
	if graph.NodeByID(graph.EntryNodeID) == nil {
		result.addError("entryNodeId %q does not reference a node", graph.EntryNodeID)
	}
}

// checkHandoffs verifies every handoff resolves, no node declares the
// same target twice, and handoff type is consistent with fan-out.
func (v *Validator) checkHandoffs(graph *core.WorkflowGraph, result *ValidationResult) {
	for _, node := range graph.Nodes {
		if node == nil || node.NodeID == "" {
			continue
		}

		seen := make(map[string]bool, len(node.HandOffs))
		for _, target := range node.HandOffs {
			if seen[target] {
				result.addError("node %q has duplicate handoffs to %q", node.NodeID, target)
			}
			seen[target] = true

			if target != core.EndNodeID && graph.NodeByID(target) == nil {
				result.addError("node %q hands off to unresolved target %q", node.NodeID, target)
			}
		}

		switch node.HandOffType {
		case "", core.HandoffSequential:
		case core.HandoffParallel:
			if len(node.HandOffs) < 2 {
				result.addError("node %q declares parallel handoff with fewer than 2 targets", node.NodeID)
			}
		default:
			result.addError("node %q has unknown handOffType %q", node.NodeID, node.HandOffType)
		}
	}
}

// checkWaitFor verifies every waitFor predecessor exists and actually
// hands off to the waiting node.
func (v *Validator) checkWaitFor(graph *core.WorkflowGraph, result *ValidationResult) {
	for _, node := range graph.Nodes {
		if node == nil {
			continue
		}
		for _, pred := range node.WaitFor {
			predNode := graph.NodeByID(pred)
			if predNode == nil {
				result.addError("node %q waits for unknown node %q", node.NodeID, pred)
				continue
			}
			found := false
			for _, target := range predNode.HandOffs {
				if target == node.NodeID {
					found = true
					break
				}
			}
			if !found {
				result.addError("node %q waits for %q which never hands off to it", node.NodeID, pred)
			}
		}
	}
}

// checkReachability runs a BFS from the entry node and reports every
// node the traversal cannot reach.
func (v *Validator) checkReachability(graph *core.WorkflowGraph, result *ValidationResult) {
	visited := bfs(graph, graph.EntryNodeID)
	for _, node := range graph.Nodes {
		if !visited[node.NodeID] {
			result.addError("node %q is unreachable from entry %q", node.NodeID, graph.EntryNodeID)
		}
	}
}

// checkPathToEnd requires at least one path from entry to the end
// sentinel.
func (v *Validator) checkPathToEnd(graph *core.WorkflowGraph, result *ValidationResult) {
	queue := []string{graph.EntryNodeID}
	visited := map[string]bool{graph.EntryNodeID: true}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := graph.NodeByID(id)
		if node == nil {
			continue
		}
		for _, target := range node.HandOffs {
			if target == core.EndNodeID {
				return
			}
			if !visited[target] {
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}

	result.addError("no path from entry %q reaches the end sentinel", graph.EntryNodeID)
}

// checkAcyclic rejects any directed cycle among handoffs.
func (v *Validator) checkAcyclic(graph *core.WorkflowGraph, result *ValidationResult) {
	visited := make(map[string]bool)
	path := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		path[id] = true

		node := graph.NodeByID(id)
		if node != nil {
			for _, target := range node.HandOffs {
				if target == core.EndNodeID {
					continue
				}
				if path[target] {
					result.addError("cycle detected through node %q", target)
					return false
				}
				if !visited[target] {
					if !visit(target) {
						return false
					}
				}
			}
		}

		path[id] = false
		return true
	}

	for _, node := range graph.Nodes {
		if !visited[node.NodeID] {
			if !visit(node.NodeID) {
				return
			}
		}
	}
}

// verifyHierarchicalStructure is the dedicated check for graphs that opt
// into cycles. Cycles are only permitted through the entry node acting
// as coordinator: with the entry node removed, the remainder of the
// graph must be acyclic.
func (v *Validator) verifyHierarchicalStructure(graph *core.WorkflowGraph, result *ValidationResult) {
	entry := graph.EntryNodeID
	visited := make(map[string]bool)
	path := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		path[id] = true

		node := graph.NodeByID(id)
		if node != nil {
			for _, target := range node.HandOffs {
				if target == core.EndNodeID || target == entry {
					continue
				}
				if path[target] {
					result.addError("hierarchical graph has a cycle not involving the entry node, through %q", target)
					return false
				}
				if !visited[target] {
					if !visit(target) {
						return false
					}
				}
			}
		}

		path[id] = false
		return true
	}

	for _, node := range graph.Nodes {
		if node.NodeID == entry || visited[node.NodeID] {
			continue
		}
		if !visit(node.NodeID) {
			return
		}
	}
}

// bfs returns the set of node ids reachable from start via handoffs.
func bfs(graph *core.WorkflowGraph, start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := graph.NodeByID(id)
		if node == nil {
			continue
		}
		for _, target := range node.HandOffs {
			if target == core.EndNodeID || visited[target] {
				continue
			}
			visited[target] = true
			queue = append(queue, target)
		}
	}

	return visited
}
