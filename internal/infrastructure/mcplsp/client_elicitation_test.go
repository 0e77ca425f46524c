package mcplsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	"go.uber.org/zap"
)

// discardWriter satisfies Client.stdin without a real child process.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeApprovalSink struct {
	lastRequest *entity.ApprovalRequest
	decision    approval.Decision
}

func (f *fakeApprovalSink) RequestApproval(ctx context.Context, req *entity.ApprovalRequest) (approval.Decision, error) {
	f.lastRequest = req
	return f.decision, nil
}

func newTestClient(responses []string, approvals ApprovalSink) *Client {
	var buf bytes.Buffer
	for _, r := range responses {
		buf.WriteString(r)
		buf.WriteByte('\n')
	}
	return &Client{
		key:       ServerKey{ServerID: "testsrv", WorkspaceRoot: "/tmp"},
		stdin:     discardWriter{},
		reader:    bufio.NewReader(&buf),
		logger:    zap.NewNop(),
		stopBg:    make(chan struct{}),
		approvals: approvals,
	}
}

func TestClient_CallTool_ResolvesElicitationThenRetries(t *testing.T) {
	data, _ := json.Marshal(elicitationData{Prompt: "allow network access?"})
	elicitResp, _ := json.Marshal(jsonrpcResponse{
		JSONRPC: "2.0", ID: 1,
		Error: &jsonrpcError{Code: elicitationRequiredCode, Message: "elicitation required", Data: data},
	})
	okResp, _ := json.Marshal(jsonrpcResponse{
		JSONRPC: "2.0", ID: 2,
		Result: json.RawMessage(`{"content":[{"type":"text","text":"done"}]}`),
	})

	sink := &fakeApprovalSink{decision: approval.Decision{ElicitationResult: entity.ElicitationAccept}}
	c := newTestClient([]string{string(elicitResp), string(okResp)}, sink)

	out, err := c.CallTool(context.Background(), "do_thing", map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("expected %q, got %q", "done", out)
	}
	if sink.lastRequest == nil || sink.lastRequest.Kind != entity.ApprovalMcpElicitation {
		t.Fatalf("expected ApprovalMcpElicitation request, got %+v", sink.lastRequest)
	}
}

func TestClient_CallTool_NoApprovalSinkConfigured(t *testing.T) {
	data, _ := json.Marshal(elicitationData{Prompt: "allow network access?"})
	elicitResp, _ := json.Marshal(jsonrpcResponse{
		JSONRPC: "2.0", ID: 1,
		Error: &jsonrpcError{Code: elicitationRequiredCode, Message: "elicitation required", Data: data},
	})
	c := newTestClient([]string{string(elicitResp)}, nil)

	if _, err := c.CallTool(context.Background(), "do_thing", map[string]interface{}{}); err == nil {
		t.Error("expected error when no approval sink is configured")
	}
}
