// Package testutil holds fakes shared across package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
)

// ScriptedGateway is a core.Gateway fake that replays a fixed sequence
// of results. Once the script runs out it keeps returning the last
// entry, so steady-state tests do not have to count calls exactly.
type ScriptedGateway struct {
	mu       sync.Mutex
	script   []core.AIResult
	errs     []error
	calls    []core.AIRequest
	position int
}

// NewScriptedGateway builds a gateway that replays results in order.
func NewScriptedGateway(results ...core.AIResult) *ScriptedGateway {
	return &ScriptedGateway{script: results, errs: make([]error, len(results))}
}

// AddResult appends one scripted result.
func (g *ScriptedGateway) AddResult(result core.AIResult) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, result)
	g.errs = append(g.errs, nil)
	return g
}

// AddError appends a transport-level failure to the script.
func (g *ScriptedGateway) AddError(err error) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, core.AIResult{})
	g.errs = append(g.errs, err)
	return g
}

func (g *ScriptedGateway) SendAI(ctx context.Context, req core.AIRequest) (core.AIResult, error) {
	if err := ctx.Err(); err != nil {
		return core.AIResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.script) == 0 {
		return core.AIResult{Success: true, Content: "ok"}, nil
	}
	i := g.position
	if i >= len(g.script) {
		i = len(g.script) - 1
	}
	g.position++
	return g.script[i], g.errs[i]
}

// Calls returns every request seen so far.
func (g *ScriptedGateway) Calls() []core.AIRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.AIRequest(nil), g.calls...)
}

// CallCount returns how many requests were made.
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// StructuredSuccess is a shorthand for a successful structured result.
func StructuredSuccess(data map[string]any, cost float64) core.AIResult {
	return core.AIResult{Success: true, Data: data, UsdCost: cost}
}

// TextSuccess is a shorthand for a successful text result.
func TextSuccess(content string, cost float64) core.AIResult {
	return core.AIResult{Success: true, Content: content, UsdCost: cost}
}

// ModelFailure is a shorthand for a model-side failure with its cost.
func ModelFailure(msg string, cost float64) core.AIResult {
	return core.AIResult{Success: false, Error: msg, UsdCost: cost}
}
