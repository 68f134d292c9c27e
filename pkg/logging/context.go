package logging

import "context"

type contextKey string

const (
	runIDKey      contextKey = "evoflow_run_id"
	nodeIDKey     contextKey = "evoflow_node_id"
	generationKey contextKey = "evoflow_generation"
)

// WithRunID attaches a workflow run identifier to the context so every
// log entry emitted under it carries the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID retrieves the workflow run identifier from the context.
func GetRunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}

// WithNodeID attaches the currently executing node's id to the context.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// GetNodeID retrieves the node identifier from the context.
func GetNodeID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(nodeIDKey).(string)
	return id, ok
}

// WithGeneration attaches the evolution generation number to the context.
func WithGeneration(ctx context.Context, generation int) context.Context {
	return context.WithValue(ctx, generationKey, generation)
}

// GetGeneration retrieves the evolution generation from the context.
func GetGeneration(ctx context.Context) (int, bool) {
	gen, ok := ctx.Value(generationKey).(int)
	return gen, ok
}
