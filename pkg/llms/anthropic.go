package llms

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
	"github.com/evoflow-ai/evoflow-go/pkg/utils"
)

const defaultMaxTokens = 4096

// AnthropicOptions configures the gateway adapter.
type AnthropicOptions struct {
	// APIKey falls back to the ANTHROPIC_API_KEY environment variable.
	APIKey string

	// BaseURL overrides the API endpoint, mainly for test servers.
	BaseURL string

	// MaxTokens is the generation cap used when a request carries none.
	MaxTokens int

	// Catalog resolves per-token pricing for cost accounting. Calls to
	// models missing from the catalog report zero cost.
	Catalog core.ModelCatalog
}

// AnthropicGateway implements core.Gateway against the Anthropic
// Messages API. Model-side failures come back as Success=false results
// with the spend preserved; only transport problems surface as Go
// errors.
type AnthropicGateway struct {
	client    *anthropic.Client
	catalog   core.ModelCatalog
	maxTokens int
}

// NewAnthropicGateway creates the adapter.
func NewAnthropicGateway(opts AnthropicOptions) (*AnthropicGateway, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "anthropic api key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = core.DefaultModelCatalog()
	}

	return &AnthropicGateway{client: &client, catalog: catalog, maxTokens: maxTokens}, nil
}

// SendAI performs one metered Messages API call.
func (g *AnthropicGateway) SendAI(ctx context.Context, req core.AIRequest) (core.AIResult, error) {
	logger := logging.GetLogger()

	system, messages, err := splitMessages(req)
	if err != nil {
		return core.AIResult{}, err
	}

	maxTokens := req.MaxTok
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := errors.CheckContext(ctx, "anthropic call"); ctxErr != nil {
			return core.AIResult{}, ctxErr
		}
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			logger.Warn(ctx, "anthropic api error: status %d model %s", apiErr.StatusCode, req.Model)
			return core.AIResult{Success: false, Error: err.Error()}, nil
		}
		return core.AIResult{}, errors.Wrap(err, errors.LLMGenerationFailed, "anthropic transport failure")
	}

	if message == nil || len(message.Content) == 0 {
		return core.AIResult{Success: false, Error: "empty response from anthropic"}, nil
	}

	content := collectText(message)
	cost := g.costUSD(req.Model, message.Usage.InputTokens, message.Usage.OutputTokens)
	logger.Debug(ctx, "anthropic call: model=%s in_tokens=%d out_tokens=%d cost_usd=%.6f",
		req.Model, message.Usage.InputTokens, message.Usage.OutputTokens, cost)

	result := core.AIResult{Success: true, Content: content, UsdCost: cost}

	if req.Mode == core.ModeStructured {
		// Best effort: the caller classifies unparsed content itself.
		if data, err := utils.ParseJSONResponse(content); err == nil {
			result.Data = data
		}
	}
	return result, nil
}

// splitMessages separates the system prompt from the conversation turns
// and appends the structured-output instruction when a schema is set.
func splitMessages(req core.AIRequest) (string, []anthropic.MessageParam, error) {
	var system strings.Builder
	var messages []anthropic.MessageParam

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return "", nil, errors.WithFields(
				errors.New(errors.InvalidInput, "unknown message role"),
				errors.Fields{"role": msg.Role})
		}
	}

	if req.Mode == core.ModeStructured && req.Schema != nil {
		schemaJSON, err := json.Marshal(req.Schema)
		if err != nil {
			return "", nil, errors.Wrap(err, errors.InvalidInput, "encoding response schema")
		}
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Respond with a single JSON object matching this schema, with no surrounding prose:\n")
		system.Write(schemaJSON)
	}

	return system.String(), messages, nil
}

func collectText(message *anthropic.Message) string {
	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (g *AnthropicGateway) costUSD(model string, inputTokens, outputTokens int64) float64 {
	entry := g.catalog.GetModelEntry(model)
	if entry == nil {
		return 0
	}
	return float64(inputTokens)*entry.InputCostPerMTok/1e6 +
		float64(outputTokens)*entry.OutputCostPerMTok/1e6
}
