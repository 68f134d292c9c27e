package core

import (
	"context"
	"time"
)

// RunState is the lifecycle state of one workflow run.
type RunState string

const (
	RunPending    RunState = "pending"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
	RunCancelling RunState = "cancelling"
	RunCancelled  RunState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// InvocationStatus is the terminal status of one node invocation.
type InvocationStatus string

const (
	InvocationRunning   InvocationStatus = "running"
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
)

// WorkflowInvocation records one node invocation within a run. The run
// owns the record; persistence treats it as append-only.
type WorkflowInvocation struct {
	NodeID               string           `json:"nodeId"`
	WorkflowInvocationID string           `json:"workflowInvocationId"`
	Status               InvocationStatus `json:"status"`
	StartTime            time.Time        `json:"startTime"`
	EndTime              time.Time        `json:"endTime"`
	UsdCost              float64          `json:"usdCost"`
	Accuracy             *float64         `json:"accuracy,omitempty"`
	Output               any              `json:"output,omitempty"`
	Error                string           `json:"error,omitempty"`
}

// NodeResult is what invoking a node produces: its output payload plus
// the subset of declared handoffs the node actually took. The declared
// HandOffs list is a validation-time contract; TakenHandoffs is the
// runtime routing decision.
type NodeResult struct {
	Output        any
	TakenHandoffs []string
	UsdCost       float64
	Accuracy      *float64
}

// NodeRunner invokes a single node with its incoming payload. The
// scheduler is agnostic to how a node computes: an LLM call, a tool
// pipeline, or a deterministic stub in tests.
type NodeRunner interface {
	Invoke(ctx context.Context, node *Node, payload Payload) (*NodeResult, error)
}

// NodeRunnerFunc adapts a function to the NodeRunner interface.
type NodeRunnerFunc func(ctx context.Context, node *Node, payload Payload) (*NodeResult, error)

func (f NodeRunnerFunc) Invoke(ctx context.Context, node *Node, payload Payload) (*NodeResult, error) {
	return f(ctx, node, payload)
}
