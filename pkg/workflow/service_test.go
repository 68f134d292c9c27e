package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

func newTestService(nodes core.NodeRunner) *Service {
	return NewService(NewValidator(), NewRunner(nodes, DefaultRunnerConfig()), 2)
}

func waitForTerminal(t *testing.T, s *Service, runID string) core.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := s.Status(runID)
		require.NoError(t, err)
		if state.Terminal() {
			return state
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("run never reached a terminal state")
	return ""
}

func TestServiceInvokeAndResult(t *testing.T) {
	s := newTestService(newRecordingRunner())

	runID, err := s.Invoke(context.Background(), validLinearGraph(), "input")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	state := waitForTerminal(t, s, runID)
	assert.Equal(t, core.RunCompleted, state)

	result, err := s.Result(runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, result.Status)
	assert.Equal(t, []any{"worker out"}, result.Outputs)
}

func TestServiceRejectsInvalidGraph(t *testing.T) {
	s := newTestService(newRecordingRunner())

	g := validLinearGraph()
	g.EntryNodeID = "missing"

	_, err := s.Invoke(context.Background(), g, "input")
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}

func TestServiceUnknownRun(t *testing.T) {
	s := newTestService(newRecordingRunner())

	_, err := s.Status("run_nope")
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))

	_, err = s.Result("run_nope")
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))

	err = s.Cancel("run_nope")
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestServiceResultBeforeFinish(t *testing.T) {
	release := make(chan struct{})
	nodes := newRecordingRunner()
	nodes.overrides["entry"] = func(ctx context.Context, node *core.Node, payload core.Payload) (*core.NodeResult, error) {
		<-release
		return &core.NodeResult{Output: "x", TakenHandoffs: []string{"worker"}}, nil
	}

	s := newTestService(nodes)
	runID, err := s.Invoke(context.Background(), validLinearGraph(), "input")
	require.NoError(t, err)

	_, err = s.Result(runID)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidWorkflowState, errors.Code(err))

	close(release)
	waitForTerminal(t, s, runID)
}

func TestServiceCancel(t *testing.T) {
	started := make(chan struct{})
	nodes := newRecordingRunner()
	nodes.overrides["entry"] = func(ctx context.Context, node *core.Node, payload core.Payload) (*core.NodeResult, error) {
		close(started)
		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), errors.Canceled, "interrupted")
	}

	s := newTestService(nodes)
	runID, err := s.Invoke(context.Background(), validLinearGraph(), "input")
	require.NoError(t, err)

	<-started
	require.NoError(t, s.Cancel(runID))

	state, err := s.Status(runID)
	require.NoError(t, err)
	assert.Contains(t, []core.RunState{core.RunCancelling, core.RunCancelled}, state)

	assert.Equal(t, core.RunCancelled, waitForTerminal(t, s, runID))

	// Cancelling a finished run is rejected.
	err = s.Cancel(runID)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidWorkflowState, errors.Code(err))

	// The result of a cancelled run is still retrievable.
	result, err := s.Result(runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCancelled, result.Status)
}

func TestServiceRunOutlivesCallerContext(t *testing.T) {
	// Invoke is fire-and-forget: cancelling the caller's request context
	// must not cancel the run.
	nodes := newRecordingRunner()
	s := newTestService(nodes)

	ctx, cancel := context.WithCancel(context.Background())
	runID, err := s.Invoke(ctx, validLinearGraph(), "input")
	require.NoError(t, err)
	cancel()

	assert.Equal(t, core.RunCompleted, waitForTerminal(t, s, runID))
}
