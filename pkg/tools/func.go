package tools

import "context"

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	fn          func(ctx context.Context, params map[string]interface{}) (string, error)
}

// NewFuncTool wraps fn as a registrable tool.
func NewFuncTool(name, description string, fn func(ctx context.Context, params map[string]interface{}) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, fn: fn}
}

func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }

func (t *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	return t.fn(ctx, params)
}
