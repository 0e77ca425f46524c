package tool

import (
	"context"
	"fmt"

	domaintool "github.com/codex-go/codex/internal/domain/tool"
	"github.com/codex-go/codex/internal/infrastructure/mcplsp"
	"go.uber.org/zap"
)

// MCPStdioTool dispatches "call a stdio MCP server's tool" through
// mcplsp.Manager (spec 4.D), as distinct from MCPManager/MCPAdapter's
// HTTP-endpoint transport: this path spawns and caches a child process per
// (server_id, workspace_root), with health checks and a restart budget,
// rather than dialing a remote URL.
type MCPStdioTool struct {
	manager   *mcplsp.Manager
	workspace string // default workspace root when args omit one
	logger    *zap.Logger
}

// NewMCPStdioTool wires manager into the tool layer. workspace is the
// default ServerKey.WorkspaceRoot used when a call doesn't specify one.
func NewMCPStdioTool(manager *mcplsp.Manager, workspace string, logger *zap.Logger) *MCPStdioTool {
	return &MCPStdioTool{manager: manager, workspace: workspace, logger: logger}
}

func (t *MCPStdioTool) Name() string { return "mcp_call" }

func (t *MCPStdioTool) Kind() domaintool.Kind { return domaintool.KindFetch }

func (t *MCPStdioTool) Description() string {
	return "Call a tool on a locally spawned, stdio-based MCP server (configured under agent.mcp.servers). " +
		"Use server_id to pick the server, tool to name the server-side tool, and arguments for its parameters."
}

func (t *MCPStdioTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"server_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the configured MCP server to call (agent.mcp.servers[].id)",
			},
			"tool": map[string]interface{}{
				"type":        "string",
				"description": "Name of the tool exposed by that MCP server",
			},
			"arguments": map[string]interface{}{
				"type":        "object",
				"description": "Arguments to pass to the server-side tool",
			},
			"workspace": map[string]interface{}{
				"type":        "string",
				"description": "Workspace root the server should operate in (defaults to the agent's workspace)",
			},
		},
		"required": []string{"server_id", "tool"},
	}
}

func (t *MCPStdioTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	serverID, _ := args["server_id"].(string)
	if serverID == "" {
		return &domaintool.Result{Output: "Error: 'server_id' parameter is required", Success: false}, nil
	}
	toolName, _ := args["tool"].(string)
	if toolName == "" {
		return &domaintool.Result{Output: "Error: 'tool' parameter is required", Success: false}, nil
	}

	workspace, _ := args["workspace"].(string)
	if workspace == "" {
		workspace = t.workspace
	}

	toolArgs, _ := args["arguments"].(map[string]interface{})
	if toolArgs == nil {
		toolArgs = map[string]interface{}{}
	}

	tmpl, ok := t.manager.Template(serverID)
	if !ok {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Error: no enabled MCP server configured with id %q", serverID),
			Success: false,
		}, nil
	}

	key := mcplsp.ServerKey{ServerID: serverID, WorkspaceRoot: workspace}
	client, err := t.manager.GetClient(ctx, key, tmpl)
	if err != nil {
		t.logger.Warn("mcp_call: failed to acquire server client",
			zap.String("server_id", serverID), zap.Error(err))
		return &domaintool.Result{
			Output:  fmt.Sprintf("Error: %v", err),
			Success: false,
		}, nil
	}

	out, err := client.CallTool(ctx, toolName, toolArgs)
	if err != nil {
		return &domaintool.Result{Output: fmt.Sprintf("Error: %v", err), Success: false}, nil
	}
	return &domaintool.Result{Output: out, Success: true}, nil
}
