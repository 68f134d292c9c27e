package workflow

import (
	"context"
	"sync"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
)

// Service is the in-process mirror of the workflow API boundary:
// invoke, poll status, cancel. It bounds concurrent runs and keeps a
// registry of live and finished runs.
type Service struct {
	validator *Validator
	runner    *Runner
	sem       chan struct{}

	mu   sync.RWMutex
	runs map[string]*runHandle
}

type runHandle struct {
	cancel context.CancelFunc

	mu     sync.RWMutex
	state  core.RunState
	result *RunResult
}

// NewService creates the run service. maxConcurrentWorkflows bounds how
// many runs execute at once; further invocations queue.
func NewService(validator *Validator, runner *Runner, maxConcurrentWorkflows int) *Service {
	if maxConcurrentWorkflows <= 0 {
		maxConcurrentWorkflows = 4
	}
	return &Service{
		validator: validator,
		runner:    runner,
		sem:       make(chan struct{}, maxConcurrentWorkflows),
		runs:      make(map[string]*runHandle),
	}
}

// Invoke validates the graph and starts a run asynchronously, returning
// the id used for status polling and cancellation. A graph that fails
// validation is rejected up front and never executed.
func (s *Service) Invoke(ctx context.Context, graph *core.WorkflowGraph, input any) (string, error) {
	if err := s.validator.ValidateStrict(graph); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &runHandle{cancel: cancel, state: core.RunPending}

	id := core.NewRunID()
	s.mu.Lock()
	s.runs[id] = handle
	s.mu.Unlock()

	go func() {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		handle.setState(core.RunRunning)
		result := s.runner.Execute(runCtx, graph, input)
		cancel()

		handle.mu.Lock()
		handle.result = result
		handle.state = result.Status
		handle.mu.Unlock()
	}()

	return id, nil
}

// Status returns the run's current lifecycle state.
func (s *Service) Status(runID string) (core.RunState, error) {
	handle, err := s.handle(runID)
	if err != nil {
		return "", err
	}
	handle.mu.RLock()
	defer handle.mu.RUnlock()
	return handle.state, nil
}

// Result returns the finished run's result, or an error while the run
// is still in progress.
func (s *Service) Result(runID string) (*RunResult, error) {
	handle, err := s.handle(runID)
	if err != nil {
		return nil, err
	}
	handle.mu.RLock()
	defer handle.mu.RUnlock()
	if handle.result == nil {
		return nil, errors.WithFields(
			errors.New(errors.InvalidWorkflowState, "run has not finished"),
			errors.Fields{"run_id": runID, "state": handle.state})
	}
	return handle.result, nil
}

// Cancel signals the run to stop. In-flight node invocations observe
// the signal at their next await point; no new dispatches occur.
func (s *Service) Cancel(runID string) error {
	handle, err := s.handle(runID)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	if handle.state.Terminal() {
		handle.mu.Unlock()
		return errors.WithFields(
			errors.New(errors.InvalidWorkflowState, "run already finished"),
			errors.Fields{"run_id": runID, "state": handle.state})
	}
	handle.state = core.RunCancelling
	handle.mu.Unlock()

	logging.GetLogger().Info(context.Background(), "cancelling run %s", runID)
	handle.cancel()
	return nil
}

func (s *Service) handle(runID string) (*runHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.runs[runID]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "unknown run"),
			errors.Fields{"run_id": runID})
	}
	return handle, nil
}

func (h *runHandle) setState(state core.RunState) {
	h.mu.Lock()
	// Cancellation may have won the race; never move backwards.
	if !h.state.Terminal() && h.state != core.RunCancelling {
		h.state = state
	}
	h.mu.Unlock()
}
