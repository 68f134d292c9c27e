package core

import "context"

// ResponseMode selects plain text or schema-constrained output.
type ResponseMode string

const (
	ModeText       ResponseMode = "text"
	ModeStructured ResponseMode = "structured"
)

// AIMessage is one turn of a gateway conversation.
type AIMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// AIRequest describes one metered call to the model gateway.
type AIRequest struct {
	Messages []AIMessage    `json:"messages"`
	Model    string         `json:"model"`
	Mode     ResponseMode   `json:"mode"`
	Schema   map[string]any `json:"schema,omitempty"` // structured mode only
	MaxTok   int            `json:"maxTokens,omitempty"`
}

// AIResult is the structured outcome of a gateway call. Model-side
// failures are reported through Success/Error rather than a Go error;
// callers accumulate UsdCost into their run budget either way.
type AIResult struct {
	Success bool           `json:"success"`
	Content string         `json:"content,omitempty"` // text mode
	Data    map[string]any `json:"data,omitempty"`    // structured mode
	Error   string         `json:"error,omitempty"`
	UsdCost float64        `json:"usdCost"`
}

// Gateway is the fallible, metered remote call into an LLM provider.
// Implementations return a Go error only for transport-level problems
// (context cancellation, network unreachability); a model refusing or
// mangling a request is Success=false.
type Gateway interface {
	SendAI(ctx context.Context, req AIRequest) (AIResult, error)
}
