package tool

import (
	"context"
	"testing"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	"github.com/codex-go/codex/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// fakeApprovalSink lets tests script a decision without running the real queue.
type fakeApprovalSink struct {
	lastRequest *entity.ApprovalRequest
	decision    approval.Decision
	err         error
}

func (f *fakeApprovalSink) RequestApproval(ctx context.Context, req *entity.ApprovalRequest) (approval.Decision, error) {
	f.lastRequest = req
	return f.decision, f.err
}

func TestBashTool_DeniedWithoutApproval(t *testing.T) {
	sink := &fakeApprovalSink{decision: approval.Decision{ExecDecision: entity.DecisionDenied}}
	policy := NewExecPolicy(nil)
	bt := NewBashToolWithApproval(nil, policy, sink, zap.NewNop())

	res, err := bt.Execute(context.Background(), map[string]interface{}{"command": "rm -rf /tmp/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected denied command to fail")
	}
	if sink.lastRequest == nil || sink.lastRequest.Kind != entity.ApprovalExec {
		t.Fatalf("expected an ApprovalExec request, got %+v", sink.lastRequest)
	}
}

func TestBashTool_ApprovalAmendmentPersistsToPolicyAndSkipsNextApproval(t *testing.T) {
	sb, err := sandbox.NewProcessSandbox(sandbox.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build sandbox: %v", err)
	}
	sink := &fakeApprovalSink{decision: approval.Decision{
		ExecDecision:    entity.DecisionApprovedExecpolicyAmendment,
		PolicyAmendment: []string{"echo"},
	}}
	policy := NewExecPolicy(nil)
	bt := NewBashToolWithApproval(sb, policy, sink, zap.NewNop())

	res, err := bt.Execute(context.Background(), map[string]interface{}{"command": "echo ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	if sink.lastRequest == nil {
		t.Fatal("expected first call to request approval")
	}
	if !policy.IsAllowed([]string{"echo", "ok"}) {
		t.Error("expected amendment to persist to policy")
	}

	// Second call with the same prefix should not need the sink at all.
	sink.lastRequest = nil
	res2, err := bt.Execute(context.Background(), map[string]interface{}{"command": "echo again"})
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if !res2.Success {
		t.Fatalf("expected second call to succeed, got error: %s", res2.Error)
	}
	if sink.lastRequest != nil {
		t.Error("expected second call to skip approval once the prefix is allow-listed")
	}
}

func TestUserQuestionTool_NoApprovalSinkConfigured(t *testing.T) {
	qt := NewUserQuestionTool(nil, zap.NewNop())
	res, err := qt.Execute(context.Background(), map[string]interface{}{"questions": []interface{}{
		map[string]interface{}{"header": "env", "question": "which?"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected failure when no approval sink is configured")
	}
}

func TestUserQuestionTool_CollectsAnswers(t *testing.T) {
	sink := &fakeApprovalSink{decision: approval.Decision{
		QuestionAnswers: map[string]string{"env": "staging"},
	}}
	qt := NewUserQuestionTool(sink, zap.NewNop())
	res, err := qt.Execute(context.Background(), map[string]interface{}{"questions": []interface{}{
		map[string]interface{}{"header": "env", "question": "which environment?"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	if sink.lastRequest.Kind != entity.ApprovalUserQuestion {
		t.Errorf("expected ApprovalUserQuestion request, got %v", sink.lastRequest.Kind)
	}
}
