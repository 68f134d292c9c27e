package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

func sampleVersion(id string) *core.WorkflowVersion {
	return &core.WorkflowVersion{
		WorkflowVersionID: id,
		Graph: &core.WorkflowGraph{
			EntryNodeID: "entry",
			Nodes: []*core.Node{
				{NodeID: "entry", SystemPrompt: "p", ModelName: "gpt-4o-mini", HandOffs: []string{core.EndNodeID}},
			},
		},
		ParentVersionIDs: []string{"wfv_parent"},
		RunID:            "run_1",
		GenerationNumber: 3,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func sampleInvocation(node string) *core.WorkflowInvocation {
	acc := 0.75
	return &core.WorkflowInvocation{
		NodeID:               node,
		WorkflowInvocationID: core.NewInvocationID(),
		Status:               core.InvocationCompleted,
		StartTime:            time.Now().UTC().Truncate(time.Second),
		EndTime:              time.Now().UTC().Truncate(time.Second),
		UsdCost:              0.01,
		Accuracy:             &acc,
		Output:               "node output",
	}
}

// runStoreContract exercises the Store behaviors every backend must
// share.
func runStoreContract(t *testing.T, s core.Store) {
	ctx := context.Background()

	// Versions round-trip.
	version := sampleVersion("wfv_1")
	require.NoError(t, s.SaveWorkflowVersion(ctx, version))

	got, err := s.RetrieveWorkflowVersion(ctx, "wfv_1")
	require.NoError(t, err)
	assert.Equal(t, version.WorkflowVersionID, got.WorkflowVersionID)
	assert.Equal(t, version.ParentVersionIDs, got.ParentVersionIDs)
	assert.Equal(t, version.GenerationNumber, got.GenerationNumber)
	require.NotNil(t, got.Graph)
	assert.Equal(t, "entry", got.Graph.EntryNodeID)
	assert.Len(t, got.Graph.Nodes, 1)

	// Unknown ids are a structured not-found.
	_, err = s.RetrieveWorkflowVersion(ctx, "wfv_missing")
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))

	// Invocations append in order and round-trip.
	first := sampleInvocation("a")
	second := sampleInvocation("b")
	require.NoError(t, s.SaveNodeInvocation(ctx, "run_1", first))
	require.NoError(t, s.SaveNodeInvocation(ctx, "run_1", second))

	invs, err := s.RetrieveWorkflowInvocations(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "node output", invs[0].Output)
	require.NotNil(t, invs[0].Accuracy)
	assert.InDelta(t, 0.75, *invs[0].Accuracy, 1e-9)
	assert.InDelta(t, 0.01, invs[0].UsdCost, 1e-9)

	// Unknown runs yield an empty trail, not an error.
	invs, err = s.RetrieveWorkflowInvocations(ctx, "run_missing")
	require.NoError(t, err)
	assert.Empty(t, invs)

	// Bad input is rejected.
	assert.Error(t, s.SaveWorkflowVersion(ctx, nil))
	assert.Error(t, s.SaveNodeInvocation(ctx, "", sampleInvocation("x")))
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreRejectsDuplicateVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflowVersion(ctx, sampleVersion("wfv_dup")))
	err := s.SaveWorkflowVersion(ctx, sampleVersion("wfv_dup"))
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestMemoryStoreCopiesOnWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	version := sampleVersion("wfv_copy")
	require.NoError(t, s.SaveWorkflowVersion(ctx, version))

	// Mutating the caller's graph must not reach the stored record.
	version.Graph.Nodes[0].SystemPrompt = "changed"

	got, err := s.RetrieveWorkflowVersion(ctx, "wfv_copy")
	require.NoError(t, err)
	assert.Equal(t, "p", got.Graph.Nodes[0].SystemPrompt)
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "evoflow.db"))
	require.NoError(t, err)
	defer s.Close()

	runStoreContract(t, s)
}

func TestSQLiteStoreRejectsDuplicateVersion(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveWorkflowVersion(ctx, sampleVersion("wfv_dup")))
	assert.Error(t, s.SaveWorkflowVersion(ctx, sampleVersion("wfv_dup")))
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evoflow.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveWorkflowVersion(context.Background(), sampleVersion("wfv_keep")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.RetrieveWorkflowVersion(context.Background(), "wfv_keep")
	require.NoError(t, err)
	assert.Equal(t, 3, got.GenerationNumber)
}
