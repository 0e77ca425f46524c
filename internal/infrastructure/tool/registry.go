package tool

import (
	"os"
	"time"

	"github.com/codex-go/codex/internal/domain/service"
	"github.com/codex-go/codex/internal/domain/service/approval"
	domaintool "github.com/codex-go/codex/internal/domain/tool"
	"github.com/codex-go/codex/internal/infrastructure/mcplsp"
	"github.com/codex-go/codex/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// ToolLayerDeps aggregates all external dependencies needed by the tool layer.
// This is the single configuration point for the entire tool subsystem.
type ToolLayerDeps struct {
	// Required
	Registry domaintool.Registry
	Logger   *zap.Logger

	// Infrastructure
	Sandbox *sandbox.ProcessSandbox // nil = tools run unsandboxed

	// Paths
	PythonEnv string // conda/venv path for Python-based tools
	SkillsDir string // ~/.ngoclaw/skills

	// Code Intelligence
	Workspace string // LSP workspace root

	// MCP
	MCPManager    *MCPManager    // nil = no HTTP-endpoint MCP support
	MCPLSPManager *mcplsp.Manager // nil = no stdio-spawned MCP/LSP support

	// Sub-Agent (nil = sub_agent tool not registered)
	SubAgent *SubAgentDeps

	// Approval (nil = shell/apply_patch/user_question run without the human
	// approval overlay, e.g. full-auto scripted runs or unit tests)
	ApprovalQueue *approval.Queue
	ExecPolicy    *ExecPolicy
}

// SubAgentDeps holds dependencies for the sub_agent tool.
type SubAgentDeps struct {
	LLMClient    service.LLMClient
	ToolExecutor service.ToolExecutor
	DefaultModel string
	MaxSteps     int
	Timeout      time.Duration
}

// RegisterAllTools registers all tools in one place. This is the ONLY
// tool registration entry point. Adding a new tool? Add it here.
//
// Registration order:
//  1. Core file operations (bash, read, write, edit, list, grep, glob, view_image)
//  2. Advanced (apply_patch, web_fetch, user_question)
//  3. Web & data (web_search)
//  5. Code intelligence (repo_map, git, lint_fix, lsp)
//  6. Agent capabilities (save_memory, update_plan, sub_agent)
//  7. MCP (mcp_manage + dynamic HTTP MCP tools, mcp_call for stdio servers)
func RegisterAllTools(deps ToolLayerDeps) int {
	var tools []domaintool.Tool

	var sink ApprovalSink
	if deps.ApprovalQueue != nil {
		sink = NewQueueApprovalSink(deps.ApprovalQueue)
	}
	if deps.MCPLSPManager != nil && sink != nil {
		deps.MCPLSPManager.SetApprovals(sink)
	}

	// ── 1. Core File Operations ──
	if sink != nil && deps.ExecPolicy != nil {
		tools = append(tools, NewBashToolWithApproval(deps.Sandbox, deps.ExecPolicy, sink, deps.Logger))
	} else {
		tools = append(tools, NewBashTool(deps.Sandbox, deps.Logger))
	}
	tools = append(tools,
		NewReadFileTool(deps.Sandbox, deps.Logger),
		NewWriteFileTool(deps.Sandbox, deps.Logger),
		NewEditFileTool(deps.Sandbox, deps.Logger),
		NewListDirTool(deps.Sandbox, deps.Logger),
		NewSearchTool(deps.Sandbox, deps.Logger),
		NewGlobTool(deps.Sandbox, deps.Logger),
		NewViewImageTool(deps.Logger),
	)

	// ── 2. Advanced ──
	if sink != nil {
		tools = append(tools, NewApplyPatchToolWithApproval(deps.Sandbox, sink, deps.Logger))
	} else {
		tools = append(tools, NewApplyPatchTool(deps.Sandbox, deps.Logger))
	}
	tools = append(tools, NewWebFetchTool(deps.Sandbox, deps.Logger))
	if sink != nil {
		tools = append(tools, NewUserQuestionTool(sink, deps.Logger))
	}

	// ── 3. Web & Data ──
	tools = append(tools, NewWebSearchTool(deps.PythonEnv, deps.SkillsDir, deps.Logger))

	// ── 5. Code Intelligence ──
	tools = append(tools, NewRepoMapTool(deps.Logger))

	workspace := deps.Workspace
	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	tools = append(tools, NewLSPTool(workspace, deps.Logger))

	if deps.Sandbox != nil {
		tools = append(tools,
			NewGitTool(deps.Sandbox, deps.Logger),
			NewLintFixTool(deps.Sandbox, deps.Logger),
		)
	}

	// ── 6. Agent Capabilities ──
	tools = append(tools,
		NewSaveMemoryTool(deps.Logger),
		NewUpdatePlanTool(deps.Logger),
	)

	if deps.SubAgent != nil {
		sa := deps.SubAgent
		tools = append(tools, NewSubAgentTool(
			sa.LLMClient,
			sa.ToolExecutor,
			sa.DefaultModel,
			sa.MaxSteps,
			sa.Timeout,
			deps.Logger,
		))
	}

	// ── 7. MCP Management ──
	if deps.MCPManager != nil {
		tools = append(tools, NewMCPManageTool(deps.MCPManager, deps.Logger))
	}
	if deps.MCPLSPManager != nil {
		tools = append(tools, NewMCPStdioTool(deps.MCPLSPManager, workspace, deps.Logger))
	}

	// ── Register everything ──
	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("Failed to register tool",
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
		} else {
			deps.Logger.Info("Registered tool", zap.String("tool", t.Name()))
			registered++
		}
	}

	// ── MCP servers (hot-plugged from mcp.json) ──
	if deps.MCPManager != nil {
		deps.MCPManager.InitFromConfig()
	}

	deps.Logger.Info("Tool layer initialized",
		zap.Int("total_registered", registered),
	)

	return registered
}
