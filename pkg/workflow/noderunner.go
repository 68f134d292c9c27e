package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// nodeOutputSchema is the structured shape every node invocation must
// return: its textual output plus the subset of handoffs it takes.
var nodeOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"response": map[string]any{"type": "string"},
		"handoff":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"response"},
}

// LLMNodeRunner invokes workflow nodes by sending the node's system
// prompt and incoming payload to the model gateway in structured mode.
type LLMNodeRunner struct {
	gateway core.Gateway
	limiter *RateLimiter
}

// NewLLMNodeRunner creates the default NodeRunner. The limiter may be
// nil when no AI-request rate bound applies.
func NewLLMNodeRunner(gateway core.Gateway, limiter *RateLimiter) *LLMNodeRunner {
	return &LLMNodeRunner{gateway: gateway, limiter: limiter}
}

// Invoke performs one metered gateway call for the node. Malformed
// structured output is reported as InvalidResponse, which the runner
// treats as repairable.
func (r *LLMNodeRunner) Invoke(ctx context.Context, node *core.Node, payload core.Payload) (*core.NodeResult, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req := core.AIRequest{
		Model:  node.ModelName,
		Mode:   core.ModeStructured,
		Schema: nodeOutputSchema,
		Messages: []core.AIMessage{
			{Role: "system", Content: buildSystemPrompt(node)},
			{Role: "user", Content: renderPayload(payload)},
		},
	}

	res, err := r.gateway.SendAI(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.LLMGenerationFailed, "gateway call failed")
	}
	if !res.Success {
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, "model call unsuccessful"),
			errors.Fields{"node_id": node.NodeID, "model": node.ModelName, "usd_cost": res.UsdCost, "gateway_error": res.Error})
	}

	output, taken, err := parseNodeOutput(node, res)
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{"usd_cost": res.UsdCost})
	}

	return &core.NodeResult{
		Output:        output,
		TakenHandoffs: taken,
		UsdCost:       res.UsdCost,
	}, nil
}

// buildSystemPrompt extends the node's prompt with routing instructions
// listing the handoffs it may take.
func buildSystemPrompt(node *core.Node) string {
	var b strings.Builder
	b.WriteString(node.SystemPrompt)
	b.WriteString("\n\nWhen you are done, choose which of your handoff targets should run next.")
	b.WriteString("\nAvailable handoffs: ")
	b.WriteString(strings.Join(node.HandOffs, ", "))
	b.WriteString("\nRespond with JSON {\"response\": <your output>, \"handoff\": [<chosen target ids>]}.")
	if len(node.Memory) > 0 {
		b.WriteString("\n\nMemory:")
		for k, v := range node.Memory {
			fmt.Fprintf(&b, "\n- %s: %s", k, v)
		}
	}
	return b.String()
}

// renderPayload flattens the incoming payload into the user message.
func renderPayload(payload core.Payload) string {
	if payload.Kind == core.PayloadSequential {
		return fmt.Sprintf("%v", payload.Content)
	}

	var b strings.Builder
	b.WriteString("You received messages from multiple upstream agents:\n")
	for _, msg := range payload.Messages {
		fmt.Fprintf(&b, "\n[from %s]\n%v\n", msg.FromNodeID, msg.Payload)
	}
	return b.String()
}

// parseNodeOutput extracts the response text and taken handoffs from a
// structured gateway result. A missing handoff field means the node
// takes all of its declared handoffs.
func parseNodeOutput(node *core.Node, res core.AIResult) (string, []string, error) {
	data := res.Data
	if data == nil && res.Content != "" {
		// Some providers return structured output as a JSON string.
		if err := json.Unmarshal([]byte(res.Content), &data); err != nil {
			return "", nil, errors.Wrap(err, errors.InvalidResponse, "structured output is not valid JSON")
		}
	}
	if data == nil {
		return "", nil, errors.New(errors.InvalidResponse, "structured output is empty")
	}

	response, ok := data["response"].(string)
	if !ok {
		return "", nil, errors.New(errors.InvalidResponse, "structured output missing response field")
	}

	raw, present := data["handoff"]
	if !present {
		return response, append([]string(nil), node.HandOffs...), nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return "", nil, errors.New(errors.InvalidResponse, "handoff field is not a list")
	}

	declared := make(map[string]bool, len(node.HandOffs))
	for _, h := range node.HandOffs {
		declared[h] = true
	}

	taken := make([]string, 0, len(list))
	for _, item := range list {
		id, ok := item.(string)
		if !ok {
			return "", nil, errors.New(errors.InvalidResponse, "handoff entry is not a string")
		}
		if !declared[id] {
			return "", nil, errors.WithFields(
				errors.New(errors.InvalidResponse, "node took an undeclared handoff"),
				errors.Fields{"node_id": node.NodeID, "handoff": id})
		}
		taken = append(taken, id)
	}

	return response, taken, nil
}
