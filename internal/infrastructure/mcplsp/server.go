// Package mcplsp manages the lifecycle of spawned MCP and language-server
// child processes, keyed per (server_id, workspace_root), generalizing the
// single-language-server-per-language design of
// internal/infrastructure/tool/lsp_tool.go into spec 4.D's cache with
// health checks, rate-limited restarts, and per-root teardown.
package mcplsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApprovalSink requests a human decision for a pending approval, blocking
// until resolved or ctx is cancelled. Structurally identical to
// internal/infrastructure/tool's ApprovalSink so the same
// approval.Queue-backed adapter satisfies both without this package
// importing the tool package (which would risk the reverse import cycle
// once tool-layer MCP registration starts consuming Client).
type ApprovalSink interface {
	RequestApproval(ctx context.Context, req *entity.ApprovalRequest) (approval.Decision, error)
}

// elicitationRequiredCode is the JSON-RPC error code this client recognizes
// as "the server wants to ask the user something before continuing" — the
// same convention internal/infrastructure/tool/mcp_adapter.go uses for its
// HTTP transport, since MCP's elicitation/create has no room in a
// synchronous request/response round trip otherwise.
const elicitationRequiredCode = -32042

type elicitationData struct {
	Prompt string `json:"prompt"`
}

// Health is the lifecycle health state of one spawned server.
type Health string

const (
	HealthStarting Health = "starting"
	HealthHealthy  Health = "healthy"
	HealthFailed   Health = "failed"
)

// ServerKey identifies one spawned child process (spec 3 "ServerKey").
type ServerKey struct {
	ServerID      string
	WorkspaceRoot string
}

func (k ServerKey) String() string {
	return k.ServerID + "@" + k.WorkspaceRoot
}

// ServerTemplate is a built-in or user-configured server definition.
type ServerTemplate struct {
	ID          string
	Command     string
	Args        []string
	Extensions  []string // file extensions this server claims, e.g. ".go"
	Languages   []string
	InstallHint string
	Enabled     bool
}

// Lifecycle tracks restart bookkeeping for one ServerKey.
type Lifecycle struct {
	mu            sync.RWMutex
	health        Health
	restartCount  int
	maxRestarts   int
	isRestarting  bool
	permanentFail bool // ServerNotInstalled: never retry, never counts against budget
}

func newLifecycle(maxRestarts int) *Lifecycle {
	return &Lifecycle{health: HealthStarting, maxRestarts: maxRestarts}
}

func (l *Lifecycle) snapshot() (Health, int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.health, l.restartCount, l.isRestarting
}

// recordCrash returns whether another restart attempt is permitted.
// ServerNotInstalled failures are recorded via markPermanentFailure instead
// and never consume the restart budget (spec 4.D "Restart policy").
func (l *Lifecycle) recordCrash() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.permanentFail {
		return false
	}
	l.restartCount++
	if l.restartCount > l.maxRestarts {
		l.health = HealthFailed
		return false
	}
	return true
}

func (l *Lifecycle) markPermanentFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.permanentFail = true
	l.health = HealthFailed
}

func (l *Lifecycle) markHealthy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.health = HealthHealthy
}

func (l *Lifecycle) setRestarting(v bool) {
	l.mu.Lock()
	l.isRestarting = v
	l.mu.Unlock()
}

// Client wraps one live stdio-framed JSON-RPC connection to a spawned server.
type Client struct {
	key    ServerKey
	cmd    *exec.Cmd
	stdin  interface{ Write([]byte) (int, error) }
	reader *bufio.Reader
	reqID  int64
	mu     sync.Mutex
	logger *zap.Logger

	shutdownOnce sync.Once
	stopBg       chan struct{}

	approvals ApprovalSink // nil = elicitation prompts fail outright instead of blocking forever
}

type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call sends a JSON-RPC request and waits for the matching response. ctx is
// checked once before the read; a read already blocked is not interrupted by
// cancellation. Framing matches the MCP/LSP "initialize"/"tools/list"
// JSON-RPC-2.0-over-stdio contract (spec 6).
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.reqID, 1)
	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcplsp: marshal request: %w", err)
	}

	c.mu.Lock()
	_, werr := c.stdin.Write(append(data, '\n'))
	c.mu.Unlock()
	if werr != nil {
		return nil, fmt.Errorf("mcplsp: write request: %w", werr)
	}

	// Synchronous stdio round-trip: read until we see our own ID. Concurrent
	// callers serialize their writes on mu; the read is not locked, and lines
	// with another request's ID are skipped.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return c.readUntil(id)
}

func (c *Client) readUntil(id int64) (json.RawMessage, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("mcplsp: read response: %w", err)
		}
		var resp jsonrpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue // skip malformed/notification lines
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			if resp.Error.Code == elicitationRequiredCode {
				var data elicitationData
				prompt := resp.Error.Message
				if len(resp.Error.Data) > 0 && json.Unmarshal(resp.Error.Data, &data) == nil && data.Prompt != "" {
					prompt = data.Prompt
				}
				return nil, &elicitationRequiredError{prompt: prompt}
			}
			return nil, fmt.Errorf("mcplsp: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// elicitationRequiredError signals that Call's response was an
// elicitationRequiredCode error rather than a transport failure.
type elicitationRequiredError struct {
	prompt string
}

func (e *elicitationRequiredError) Error() string {
	return fmt.Sprintf("mcplsp: elicitation required: %s", e.prompt)
}

// CallTool invokes "tools/call" and unwraps the standard MCP
// { content: [{type,text}], isError } response shape, resolving exactly one
// server-initiated elicitation round trip via the approval overlay before
// retrying (spec 4.D / 4.I).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	params := map[string]interface{}{"name": name, "arguments": args}

	resp, err := c.Call(ctx, "tools/call", params)
	if elicit, ok := err.(*elicitationRequiredError); ok {
		answer, aerr := c.resolveElicitation(ctx, elicit.prompt)
		if aerr != nil {
			return "", fmt.Errorf("mcplsp: elicitation for %s.%s: %w", c.key.ServerID, name, aerr)
		}
		params["elicitation_response"] = answer
		resp, err = c.Call(ctx, "tools/call", params)
	}
	if err != nil {
		return "", fmt.Errorf("mcplsp: tools/call failed for %s.%s: %w", c.key.ServerID, name, err)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return string(resp), nil
	}
	if result.IsError {
		if len(result.Content) > 0 {
			return "", fmt.Errorf("mcplsp: tool error: %s", result.Content[0].Text)
		}
		return "", fmt.Errorf("mcplsp: tool returned error without message")
	}

	var output string
	for _, part := range result.Content {
		if part.Type == "text" {
			output += part.Text
		}
	}
	return output, nil
}

func (c *Client) resolveElicitation(ctx context.Context, prompt string) (string, error) {
	if c.approvals == nil {
		return "", fmt.Errorf("no approval sink configured for server %s", c.key.ServerID)
	}
	req := &entity.ApprovalRequest{
		ID:       uuid.NewString(),
		Kind:     entity.ApprovalMcpElicitation,
		ServerID: c.key.ServerID,
		Prompt:   prompt,
	}
	decision, err := c.approvals.RequestApproval(ctx, req)
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

// Shutdown sends the shutdown/exit sequence and force-kills the process.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.stopBg)
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = c.Call(shutCtx, "shutdown", nil)
		if c.cmd != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
	})
}
