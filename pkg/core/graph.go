package core

// EndNodeID is the sentinel handoff target that terminates a branch.
// It never corresponds to a real node.
const EndNodeID = "end"

// HandoffType describes how a node fans out to its handoff targets.
type HandoffType string

const (
	// HandoffSequential routes the node's output to its targets one
	// branch at a time, in declaration order.
	HandoffSequential HandoffType = "sequential"

	// HandoffParallel dispatches all handoff targets as independently
	// schedulable invocations.
	HandoffParallel HandoffType = "parallel"
)

// Node is a single agent in a workflow graph. Nodes are mutated in place
// only while a graph is being constructed or transformed by an operator;
// once wrapped in a genome for evaluation they are treated as immutable.
type Node struct {
	NodeID       string            `json:"nodeId" yaml:"node_id"`
	Description  string            `json:"description" yaml:"description"`
	SystemPrompt string            `json:"systemPrompt" yaml:"system_prompt"`
	ModelName    string            `json:"modelName" yaml:"model_name"`
	Tools        []string          `json:"tools,omitempty" yaml:"tools,omitempty"`
	HandOffs     []string          `json:"handOffs" yaml:"hand_offs"`
	HandOffType  HandoffType       `json:"handOffType,omitempty" yaml:"hand_off_type,omitempty"`
	WaitFor      []string          `json:"waitFor,omitempty" yaml:"wait_for,omitempty"`
	Memory       map[string]string `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := &Node{
		NodeID:       n.NodeID,
		Description:  n.Description,
		SystemPrompt: n.SystemPrompt,
		ModelName:    n.ModelName,
		HandOffType:  n.HandOffType,
	}
	if n.Tools != nil {
		c.Tools = append([]string(nil), n.Tools...)
	}
	if n.HandOffs != nil {
		c.HandOffs = append([]string(nil), n.HandOffs...)
	}
	if n.WaitFor != nil {
		c.WaitFor = append([]string(nil), n.WaitFor...)
	}
	if n.Memory != nil {
		c.Memory = make(map[string]string, len(n.Memory))
		for k, v := range n.Memory {
			c.Memory[k] = v
		}
	}
	return c
}

// WorkflowGraph is the configuration of one multi-agent workflow: an
// ordered set of nodes plus the entry point.
type WorkflowGraph struct {
	Nodes       []*Node           `json:"nodes" yaml:"nodes"`
	EntryNodeID string            `json:"entryNodeId" yaml:"entry_node_id"`
	Memory      map[string]string `json:"memory,omitempty" yaml:"memory,omitempty"`

	// AllowCycles opts into the hierarchical coordination pattern where
	// a coordinator node and its workers reference each other. The
	// validator runs a dedicated structure check instead of the general
	// acyclicity check when this is set.
	AllowCycles bool `json:"allowCycles,omitempty" yaml:"allow_cycles,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *WorkflowGraph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.NodeID == id {
			return n
		}
	}
	return nil
}

// Predecessors returns the ids of nodes that declare a handoff to the
// given node, in graph declaration order.
func (g *WorkflowGraph) Predecessors(nodeID string) []string {
	var preds []string
	for _, n := range g.Nodes {
		for _, target := range n.HandOffs {
			if target == nodeID {
				preds = append(preds, n.NodeID)
				break
			}
		}
	}
	return preds
}

// Clone returns a deep copy of the graph. Mutation operators clone the
// parent graph before editing so evaluated genomes stay untouched.
func (g *WorkflowGraph) Clone() *WorkflowGraph {
	c := &WorkflowGraph{
		EntryNodeID: g.EntryNodeID,
		AllowCycles: g.AllowCycles,
		Nodes:       make([]*Node, 0, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		c.Nodes = append(c.Nodes, n.Clone())
	}
	if g.Memory != nil {
		c.Memory = make(map[string]string, len(g.Memory))
		for k, v := range g.Memory {
			c.Memory[k] = v
		}
	}
	return c
}
