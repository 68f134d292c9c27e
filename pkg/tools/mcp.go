package tools

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/XiaoConstantine/mcp-go/pkg/client"
	mcplogging "github.com/XiaoConstantine/mcp-go/pkg/logging"
	models "github.com/XiaoConstantine/mcp-go/pkg/model"
	"github.com/XiaoConstantine/mcp-go/pkg/transport"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// MCPClient is the subset of the mcp-go client the tool layer needs.
// *client.Client satisfies it.
type MCPClient interface {
	ListTools(ctx context.Context, cursor *models.Cursor) (*models.ListToolsResult, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*models.CallToolResult, error)
}

// MCPTool delegates execution to a tool hosted on an MCP server.
type MCPTool struct {
	name        string
	description string
	schema      models.InputSchema
	client      MCPClient
	remoteName  string
}

// NewMCPTool creates a tool backed by the named remote MCP tool.
func NewMCPTool(name, description string, schema models.InputSchema, mcpClient MCPClient, remoteName string) *MCPTool {
	return &MCPTool{
		name:        name,
		description: description,
		schema:      schema,
		client:      mcpClient,
		remoteName:  remoteName,
	}
}

func (t *MCPTool) Name() string        { return t.name }
func (t *MCPTool) Description() string { return t.description }

// InputSchema returns the remote tool's parameter schema.
func (t *MCPTool) InputSchema() models.InputSchema { return t.schema }

// Execute forwards the call to the MCP server and flattens the text
// content of the result.
func (t *MCPTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	result, err := t.client.CallTool(ctx, t.remoteName, params)
	if err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.Unknown, "mcp tool call failed"),
			errors.Fields{"tool_name": t.name})
	}
	text := extractContentText(result.Content)
	if result.IsError {
		return "", errors.WithFields(
			errors.New(errors.Unknown, "mcp tool reported an error"),
			errors.Fields{"tool_name": t.name, "output": text})
	}
	return text, nil
}

// MCPClientOptions configures NewMCPClientFromStdio.
type MCPClientOptions struct {
	ClientName    string
	ClientVersion string
	Logger        mcplogging.Logger
}

// NewMCPClientFromStdio connects to an MCP server over standard I/O,
// typically a subprocess, and performs the initialize handshake.
func NewMCPClientFromStdio(reader io.Reader, writer io.Writer, options MCPClientOptions) (*client.Client, error) {
	logger := options.Logger
	if logger == nil {
		logger = mcplogging.NewStdLogger(mcplogging.InfoLevel)
	}

	t := transport.NewStdioTransport(reader, writer, logger)

	clientOptions := []client.Option{client.WithLogger(logger)}
	if options.ClientName != "" && options.ClientVersion != "" {
		clientOptions = append(clientOptions, client.WithClientInfo(options.ClientName, options.ClientVersion))
	}

	mcpClient := client.NewClient(t, clientOptions...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := mcpClient.Initialize(ctx); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "initializing mcp client")
	}
	return mcpClient, nil
}

// RegisterMCPTools discovers every tool the MCP server exposes and
// registers it locally under its remote name.
func RegisterMCPTools(ctx context.Context, registry *Registry, mcpClient MCPClient) error {
	result, err := mcpClient.ListTools(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "listing mcp tools")
	}

	for _, remote := range result.Tools {
		tool := NewMCPTool(remote.Name, remote.Description, remote.InputSchema, mcpClient, remote.Name)
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func extractContentText(content []models.Content) string {
	var b strings.Builder
	for _, item := range content {
		if text, ok := item.(models.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
