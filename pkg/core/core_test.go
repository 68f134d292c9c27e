package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeClone(t *testing.T) {
	n := &Node{
		NodeID:       "planner",
		SystemPrompt: "plan the task",
		ModelName:    "gpt-4o-mini",
		Tools:        []string{"search", "calculator"},
		HandOffs:     []string{"worker", "end"},
		WaitFor:      []string{"intake"},
		Memory:       map[string]string{"scratch": "x"},
	}

	c := n.Clone()
	require.Equal(t, n, c)

	c.HandOffs[0] = "other"
	c.Memory["scratch"] = "y"
	assert.Equal(t, "worker", n.HandOffs[0])
	assert.Equal(t, "x", n.Memory["scratch"])
}

func TestGraphNodeByID(t *testing.T) {
	g := &WorkflowGraph{
		EntryNodeID: "a",
		Nodes: []*Node{
			{NodeID: "a", HandOffs: []string{"b"}},
			{NodeID: "b", HandOffs: []string{EndNodeID}},
		},
	}

	require.NotNil(t, g.NodeByID("a"))
	assert.Equal(t, "b", g.NodeByID("b").NodeID)
	assert.Nil(t, g.NodeByID("missing"))
}

func TestGraphPredecessors(t *testing.T) {
	g := &WorkflowGraph{
		EntryNodeID: "entry",
		Nodes: []*Node{
			{NodeID: "entry", HandOffs: []string{"a", "b"}},
			{NodeID: "a", HandOffs: []string{"join"}},
			{NodeID: "b", HandOffs: []string{"join"}},
			{NodeID: "join", HandOffs: []string{EndNodeID}},
		},
	}

	assert.Equal(t, []string{"a", "b"}, g.Predecessors("join"))
	assert.Equal(t, []string{"entry"}, g.Predecessors("a"))
	assert.Empty(t, g.Predecessors("entry"))
}

func TestGraphCloneIsDeep(t *testing.T) {
	g := &WorkflowGraph{
		EntryNodeID: "a",
		Nodes:       []*Node{{NodeID: "a", HandOffs: []string{EndNodeID}}},
	}

	c := g.Clone()
	c.Nodes[0].HandOffs[0] = "b"
	assert.Equal(t, EndNodeID, g.Nodes[0].HandOffs[0])
}

func TestRunStateTerminal(t *testing.T) {
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunCancelled.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.False(t, RunCancelling.Terminal())
	assert.False(t, RunPending.Terminal())
}

func TestPayloadConstructors(t *testing.T) {
	seq := NewSequentialPayload("hello")
	assert.Equal(t, PayloadSequential, seq.Kind)
	assert.Equal(t, "hello", seq.Content)
	assert.Empty(t, seq.Messages)

	agg := NewAggregatedPayload([]AggregatedMessage{
		{Payload: "from-a", FromNodeID: "a"},
		{Payload: "from-b", FromNodeID: "b"},
	})
	assert.Equal(t, PayloadAggregated, agg.Kind)
	require.Len(t, agg.Messages, 2)
	assert.Equal(t, "a", agg.Messages[0].FromNodeID)
}

func TestIDGenerators(t *testing.T) {
	v1, v2 := NewVersionID(), NewVersionID()
	assert.True(t, strings.HasPrefix(v1, "wfv_"))
	assert.NotEqual(t, v1, v2)

	assert.True(t, strings.HasPrefix(NewRunID(), "run_"))
	assert.True(t, strings.HasPrefix(NewInvocationID(), "inv_"))
}

func TestDefaultModelCatalog(t *testing.T) {
	catalog := DefaultModelCatalog()

	entry := catalog.GetModelEntry("gpt-4o-mini")
	require.NotNil(t, entry)
	assert.True(t, entry.Active)

	retired := catalog.GetModelEntry("gpt-3.5-turbo")
	require.NotNil(t, retired)
	assert.False(t, retired.Active)

	assert.Nil(t, catalog.GetModelEntry("made-up-model"))
}

func TestStaticToolCatalog(t *testing.T) {
	catalog := NewStaticToolCatalog("search", "calculator")
	assert.True(t, catalog.IsToolActive("search"))
	assert.False(t, catalog.IsToolActive("browser"))
}
