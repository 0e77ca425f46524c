package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	"go.uber.org/zap"
)

// elicitOnceServer replies with elicitationRequiredCode on the first
// tools/call and succeeds once the retry carries an elicitation_response.
func elicitOnceServer(t *testing.T) *httptest.Server {
	asked := false
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "tools/call" {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		if !asked {
			asked = true
			data, _ := json.Marshal(elicitationData{Prompt: "allow network access?"})
			resp := jsonRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error: &jsonRPCError{
					Code:    elicitationRequiredCode,
					Message: "elicitation required",
					Data:    data,
				},
			}
			json.NewEncoder(w).Encode(resp)
			return
		}
		params, ok := req.Params.(map[string]interface{})
		if !ok || params["elicitation_response"] != "accept" {
			t.Fatalf("expected retry to carry elicitation_response=accept, got %+v", req.Params)
		}
		result := json.RawMessage(`{"content":[{"type":"text","text":"done"}]}`)
		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestMCPAdapter_CallTool_ResolvesElicitationThenRetries(t *testing.T) {
	srv := elicitOnceServer(t)
	defer srv.Close()

	sink := &fakeApprovalSink{decision: approval.Decision{ElicitationResult: entity.ElicitationAccept}}
	adapter := NewMCPAdapterWithApproval("testsrv", srv.URL, sink, zap.NewNop())

	out, err := adapter.CallTool(context.Background(), "do_thing", map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("expected %q, got %q", "done", out)
	}
	if sink.lastRequest == nil || sink.lastRequest.Kind != entity.ApprovalMcpElicitation {
		t.Fatalf("expected ApprovalMcpElicitation request, got %+v", sink.lastRequest)
	}
	if sink.lastRequest.Prompt != "allow network access?" {
		t.Errorf("unexpected prompt: %q", sink.lastRequest.Prompt)
	}
}

func TestMCPAdapter_CallTool_DeclinedElicitationFails(t *testing.T) {
	srv := elicitOnceServer(t)
	defer srv.Close()

	sink := &fakeApprovalSink{decision: approval.Decision{ElicitationResult: entity.ElicitationDecline}}
	adapter := NewMCPAdapterWithApproval("testsrv", srv.URL, sink, zap.NewNop())

	if _, err := adapter.CallTool(context.Background(), "do_thing", map[string]interface{}{}); err == nil {
		t.Error("expected error when user declines the elicitation prompt")
	}
}

func TestMCPAdapter_CallTool_NoApprovalSinkConfigured(t *testing.T) {
	srv := elicitOnceServer(t)
	defer srv.Close()

	adapter := NewMCPAdapter("testsrv", srv.URL, zap.NewNop())
	if _, err := adapter.CallTool(context.Background(), "do_thing", map[string]interface{}{}); err == nil {
		t.Error("expected error when no approval sink is configured")
	}
}
