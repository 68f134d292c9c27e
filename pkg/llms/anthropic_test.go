package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *AnthropicGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := NewAnthropicGateway(AnthropicOptions{
		APIKey:  "sk-test",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return gw
}

func messagesResponse(text string, inTokens, outTokens int) map[string]any {
	return map[string]any{
		"id":    "msg_test",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-sonnet-4-5",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  inTokens,
			"output_tokens": outTokens,
		},
	}
}

func TestNewAnthropicGatewayRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicGateway(AnthropicOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestSendAITextMode(t *testing.T) {
	var captured map[string]any
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(messagesResponse("hello back", 1000, 500)))
	})

	result, err := gw.SendAI(context.Background(), core.AIRequest{
		Model: "claude-sonnet-4-5",
		Mode:  core.ModeText,
		Messages: []core.AIMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello back", result.Content)
	// 1000 in at $3/MTok plus 500 out at $15/MTok.
	assert.InDelta(t, 0.0105, result.UsdCost, 1e-9)

	assert.Equal(t, "claude-sonnet-4-5", captured["model"])
	system, _ := captured["system"].([]any)
	require.Len(t, system, 1)
}

func TestSendAIStructuredMode(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := messagesResponse(`{"response": "done", "handoff": ["end"]}`, 10, 10)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	})

	result, err := gw.SendAI(context.Background(), core.AIRequest{
		Model: "claude-sonnet-4-5",
		Mode:  core.ModeStructured,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"response": map[string]any{"type": "string"},
			},
		},
		Messages: []core.AIMessage{{Role: "user", Content: "go"}},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Data)
	assert.Equal(t, "done", result.Data["response"])
}

func TestSendAIStructuredModeUnparseableContent(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(messagesResponse("not json at all", 10, 10)))
	})

	result, err := gw.SendAI(context.Background(), core.AIRequest{
		Model:    "claude-sonnet-4-5",
		Mode:     core.ModeStructured,
		Schema:   map[string]any{"type": "object"},
		Messages: []core.AIMessage{{Role: "user", Content: "go"}},
	})

	// Unparseable structured output is still a successful call; the
	// caller decides whether it is repairable.
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Data)
	assert.Equal(t, "not json at all", result.Content)
}

func TestSendAIAPIErrorIsStructuredFailure(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`))
	})

	result, err := gw.SendAI(context.Background(), core.AIRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []core.AIMessage{{Role: "user", Content: "go"}},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestSendAICancelledContext(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(messagesResponse("ok", 1, 1)))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.SendAI(ctx, core.AIRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []core.AIMessage{{Role: "user", Content: "go"}},
	})
	require.Error(t, err)
}

func TestSendAIRejectsUnknownRole(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := gw.SendAI(context.Background(), core.AIRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []core.AIMessage{{Role: "tool", Content: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestCostUSDUnknownModel(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Zero(t, gw.costUSD("made-up-model", 1000, 1000))
}
