package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MCPToolDef MCP 工具定义 (从 MCP Server 发现)
type MCPToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPAdapter 将外部 MCP Server 的工具接入 ToolExecutor
type MCPAdapter struct {
	name      string // MCP Server 名称
	endpoint  string // MCP Server 地址
	client    *http.Client
	logger    *zap.Logger
	tools     []MCPToolDef
	mu        sync.RWMutex
	approvals ApprovalSink // nil = elicitation prompts fail outright instead of blocking forever
}

// NewMCPAdapter 创建 MCP 适配器
func NewMCPAdapter(name, endpoint string, logger *zap.Logger) *MCPAdapter {
	return &MCPAdapter{
		name:     name,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NewMCPAdapterWithApproval wires the adapter to the approval overlay
// (component I) so a server-initiated elicitation prompt (spec 4.D: the MCP
// server asks the user a question mid tool-call) surfaces through the same
// ApprovalMcpElicitation request kind as the rest of the approval surface,
// instead of failing or blocking the HTTP round trip indefinitely.
func NewMCPAdapterWithApproval(name, endpoint string, approvals ApprovalSink, logger *zap.Logger) *MCPAdapter {
	a := NewMCPAdapter(name, endpoint, logger)
	a.approvals = approvals
	return a
}

// elicitationRequiredCode is the JSON-RPC error code this adapter recognizes
// as "the server wants to ask the user something before continuing" — MCP's
// elicitation/create request has no room in this adapter's simple
// request/response HTTP transport (no server-initiated push), so the
// elicitation prompt rides back as a distinguished error instead.
const elicitationRequiredCode = -32042

// elicitationData is the jsonRPCError.Data payload carried alongside
// elicitationRequiredCode.
type elicitationData struct {
	Prompt string `json:"prompt"`
}

// ─────────────────── JSON-RPC 2.0 ───────────────────

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ─────────────────── 核心方法 ───────────────────

// DiscoverTools 连接 MCP Server, 发现可用工具
func (a *MCPAdapter) DiscoverTools(ctx context.Context) ([]MCPToolDef, error) {
	resp, err := a.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("MCP tools/list failed for %s: %w", a.name, err)
	}

	var result struct {
		Tools []MCPToolDef `json:"tools"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse MCP tools response: %w", err)
	}

	a.mu.Lock()
	a.tools = result.Tools
	a.mu.Unlock()

	a.logger.Info("MCP tools discovered",
		zap.String("server", a.name),
		zap.Int("tool_count", len(result.Tools)),
	)

	return result.Tools, nil
}

// CallTool 调用 MCP Server 上的工具
func (a *MCPAdapter) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}

	resp, err := a.call(ctx, "tools/call", params)
	if elicit, ok := err.(*elicitationRequiredError); ok {
		answer, aerr := a.resolveElicitation(ctx, elicit.prompt)
		if aerr != nil {
			return "", fmt.Errorf("MCP elicitation for %s.%s: %w", a.name, name, aerr)
		}
		params["elicitation_response"] = answer
		resp, err = a.call(ctx, "tools/call", params)
	}
	if err != nil {
		return "", fmt.Errorf("MCP tools/call failed for %s.%s: %w", a.name, name, err)
	}

	// MCP 标准响应: { content: [{ type: "text", text: "..." }] }
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		// 降级: 直接返回原始 JSON
		return string(resp), nil
	}

	if result.IsError {
		if len(result.Content) > 0 {
			return "", fmt.Errorf("MCP tool error: %s", result.Content[0].Text)
		}
		return "", fmt.Errorf("MCP tool returned error without message")
	}

	// 拼接所有 text content
	var output string
	for _, c := range result.Content {
		if c.Type == "text" {
			output += c.Text
		}
	}
	return output, nil
}

// GetTools 返回已发现的工具列表
func (a *MCPAdapter) GetTools() []MCPToolDef {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]MCPToolDef, len(a.tools))
	copy(result, a.tools)
	return result
}

// Name 返回 MCP Server 名称
func (a *MCPAdapter) Name() string {
	return a.name
}

// ─────────────────── JSON-RPC 传输层 ───────────────────

var rpcIDCounter int
var rpcIDMu sync.Mutex

func nextRPCID() int {
	rpcIDMu.Lock()
	defer rpcIDMu.Unlock()
	rpcIDCounter++
	return rpcIDCounter
}

func (a *MCPAdapter) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	reqBody := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      nextRPCID(),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON-RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MCP HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("MCP server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode JSON-RPC response: %w", err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == elicitationRequiredCode {
			var data elicitationData
			prompt := rpcResp.Error.Message
			if len(rpcResp.Error.Data) > 0 && json.Unmarshal(rpcResp.Error.Data, &data) == nil && data.Prompt != "" {
				prompt = data.Prompt
			}
			return nil, &elicitationRequiredError{prompt: prompt}
		}
		return nil, fmt.Errorf("MCP RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// elicitationRequiredError signals that the server's response to call() was
// an elicitationRequiredCode error rather than a transport failure.
type elicitationRequiredError struct {
	prompt string
}

func (e *elicitationRequiredError) Error() string {
	return fmt.Sprintf("elicitation required: %s", e.prompt)
}

// resolveElicitation parks the tool call on the approval overlay until the
// user accepts, declines, or cancels the server's prompt (spec 4.D/4.I). A
// decline or cancel surfaces as an error so CallTool aborts the tool call
// instead of silently retrying with an empty answer.
func (a *MCPAdapter) resolveElicitation(ctx context.Context, prompt string) (string, error) {
	if a.approvals == nil {
		return "", fmt.Errorf("no approval sink configured for server %s", a.name)
	}
	req := &entity.ApprovalRequest{
		ID:       uuid.NewString(),
		Kind:     entity.ApprovalMcpElicitation,
		ServerID: a.name,
		Prompt:   prompt,
	}
	decision, err := a.approvals.RequestApproval(ctx, req)
	if err != nil {
		return "", err
	}
	switch decision.ElicitationResult {
	case entity.ElicitationAccept:
		return "accept", nil
	case entity.ElicitationDecline:
		return "", fmt.Errorf("user declined elicitation prompt")
	default:
		return "", fmt.Errorf("elicitation prompt cancelled")
	}
}
