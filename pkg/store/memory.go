package store

import (
	"context"
	"sync"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// MemoryStore is the in-process Store used by tests and single-shot
// runs. Records are copied on write so later caller mutations do not
// leak into the log.
type MemoryStore struct {
	mu          sync.RWMutex
	versions    map[string]*core.WorkflowVersion
	invocations map[string][]*core.WorkflowInvocation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions:    make(map[string]*core.WorkflowVersion),
		invocations: make(map[string][]*core.WorkflowInvocation),
	}
}

func (s *MemoryStore) SaveWorkflowVersion(_ context.Context, version *core.WorkflowVersion) error {
	if version == nil || version.WorkflowVersionID == "" {
		return errors.New(errors.InvalidInput, "workflow version requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.versions[version.WorkflowVersionID]; exists {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "workflow version already saved"),
			errors.Fields{"workflow_version_id": version.WorkflowVersionID})
	}
	s.versions[version.WorkflowVersionID] = copyVersion(version)
	return nil
}

func (s *MemoryStore) SaveNodeInvocation(_ context.Context, runID string, inv *core.WorkflowInvocation) error {
	if runID == "" || inv == nil {
		return errors.New(errors.InvalidInput, "node invocation requires a run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *inv
	s.invocations[runID] = append(s.invocations[runID], &clone)
	return nil
}

func (s *MemoryStore) RetrieveWorkflowVersion(_ context.Context, versionID string) (*core.WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[versionID]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "workflow version not found"),
			errors.Fields{"workflow_version_id": versionID})
	}
	return copyVersion(version), nil
}

func (s *MemoryStore) RetrieveWorkflowInvocations(_ context.Context, runID string) ([]*core.WorkflowInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invs := s.invocations[runID]
	out := make([]*core.WorkflowInvocation, len(invs))
	for i, inv := range invs {
		clone := *inv
		out[i] = &clone
	}
	return out, nil
}

func copyVersion(v *core.WorkflowVersion) *core.WorkflowVersion {
	clone := *v
	if v.Graph != nil {
		clone.Graph = v.Graph.Clone()
	}
	clone.ParentVersionIDs = append([]string(nil), v.ParentVersionIDs...)
	return &clone
}
