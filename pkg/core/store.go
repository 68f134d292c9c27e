package core

import (
	"context"
	"time"
)

// WorkflowVersion is a persisted snapshot of a workflow graph plus its
// lineage, one row per genome or user-submitted revision.
type WorkflowVersion struct {
	WorkflowVersionID string         `json:"workflowVersionId"`
	Graph             *WorkflowGraph `json:"graph"`
	ParentVersionIDs  []string       `json:"parentVersionIds,omitempty"`
	RunID             string         `json:"runId,omitempty"`
	GenerationNumber  int            `json:"generationNumber"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Store is the persistence collaborator. The core uses it as an
// append-only event log and never requires read-after-write consistency
// stronger than same-process visibility.
type Store interface {
	SaveWorkflowVersion(ctx context.Context, version *WorkflowVersion) error
	SaveNodeInvocation(ctx context.Context, runID string, inv *WorkflowInvocation) error
	RetrieveWorkflowVersion(ctx context.Context, versionID string) (*WorkflowVersion, error)
	RetrieveWorkflowInvocations(ctx context.Context, runID string) ([]*WorkflowInvocation, error)
}
