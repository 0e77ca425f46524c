package service

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	domaintool "github.com/codex-go/codex/internal/domain/tool"
	"github.com/codex-go/codex/internal/infrastructure/rollout"
	"go.uber.org/zap"
)

// fakeLLM answers with a fixed response and blocks until unblock is closed,
// so tests can interrupt a turn mid-flight deterministically.
type fakeLLM struct {
	resp    *LLMResponse
	unblock chan struct{}
}

func (f *fakeLLM) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return f.resp, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error) {
	if f.unblock != nil {
		select {
		case <-f.unblock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, nil
}

type fakeTools struct{}

func (fakeTools) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Success: true, Output: "ok"}, nil
}
func (fakeTools) GetDefinitions() []domaintool.Definition   { return nil }
func (fakeTools) GetToolKind(name string) domaintool.Kind   { return domaintool.KindExecute }

func newTestEngine(resp *LLMResponse, approvals *approval.Queue) *Engine {
	loop := NewAgentLoop(&fakeLLM{resp: resp}, fakeTools{}, DefaultAgentLoopConfig(), zap.NewNop())
	tc := entity.NewTurnContext(entity.TurnContextConfig{Model: "test-model"})
	return NewEngine(loop, approvals, tc, zap.NewNop())
}

func TestEngine_SubmitUserInput_CompletesAndAccumulatesHistory(t *testing.T) {
	e := newTestEngine(&LLMResponse{Content: "hello there"}, nil)

	events, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubUserInput, UserText: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawStart, sawComplete bool
	for ev := range events {
		switch ev.Type {
		case entity.EventTaskStarted:
			sawStart = true
		case entity.EventTaskComplete:
			sawComplete = true
		}
	}
	if !sawStart || !sawComplete {
		t.Fatalf("expected task_started and task_complete events, start=%v complete=%v", sawStart, sawComplete)
	}

	e.mu.Lock()
	history := e.history
	e.mu.Unlock()
	if len(history) != 2 {
		t.Fatalf("expected 2 history messages (user + assistant), got %d: %+v", len(history), history)
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("unexpected history roles: %+v", history)
	}
}

func TestEngine_SubmitUserInput_RejectsOverlappingTurn(t *testing.T) {
	llm := &fakeLLM{resp: &LLMResponse{Content: "done"}, unblock: make(chan struct{})}
	loop := NewAgentLoop(llm, fakeTools{}, DefaultAgentLoopConfig(), zap.NewNop())
	tc := entity.NewTurnContext(entity.TurnContextConfig{Model: "test-model"})
	e := NewEngine(loop, nil, tc, zap.NewNop())

	events, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubUserInput, UserText: "first"})
	if err != nil {
		t.Fatalf("unexpected error starting first turn: %v", err)
	}

	if _, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubUserInput, UserText: "second"}); err == nil {
		t.Error("expected overlapping turn submission to be rejected")
	}

	close(llm.unblock)
	for range events {
	}
}

func TestEngine_Interrupt_UnblocksTurnAndDrainsApprovals(t *testing.T) {
	q := approval.NewQueue()
	llm := &fakeLLM{resp: &LLMResponse{Content: "done"}, unblock: make(chan struct{})}
	loop := NewAgentLoop(llm, fakeTools{}, DefaultAgentLoopConfig(), zap.NewNop())
	tc := entity.NewTurnContext(entity.TurnContextConfig{Model: "test-model"})
	e := NewEngine(loop, q, tc, zap.NewNop())

	ch := q.Enqueue(&entity.ApprovalRequest{ID: "req-1", Kind: entity.ApprovalExec})

	events, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubUserInput, UserText: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubInterrupt}); err != nil {
		t.Fatalf("unexpected error on interrupt: %v", err)
	}

	select {
	case decision := <-ch:
		if decision.ExecDecision != entity.DecisionAbort {
			t.Errorf("expected abort decision, got %+v", decision)
		}
	case <-time.After(time.Second):
		t.Fatal("expected queued approval to be aborted")
	}

	var sawInterrupted bool
	for ev := range events {
		if ev.Type == entity.EventTurnInterrupted {
			sawInterrupted = true
		}
	}
	if !sawInterrupted {
		t.Error("expected exactly one turn_interrupted event")
	}
}

func TestEngine_ResolveExecApproval_RoutesToQueue(t *testing.T) {
	q := approval.NewQueue()
	e := newTestEngine(&LLMResponse{Content: "x"}, q)

	ch := q.Enqueue(&entity.ApprovalRequest{ID: "req-1", Kind: entity.ApprovalExec})

	_, err := e.Submit(context.Background(), entity.Submission{
		Kind:           entity.SubExecApproval,
		ExecApprovalID: "req-1",
		ExecDecision:   entity.DecisionApproved,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case decision := <-ch:
		if decision.ExecDecision != entity.DecisionApproved {
			t.Errorf("expected approved decision, got %+v", decision)
		}
	case <-time.After(time.Second):
		t.Fatal("expected decision to be delivered")
	}
}

func TestEngine_ResolveExecApproval_NoQueueConfigured(t *testing.T) {
	e := newTestEngine(&LLMResponse{Content: "x"}, nil)
	_, err := e.Submit(context.Background(), entity.Submission{
		Kind:           entity.SubExecApproval,
		ExecApprovalID: "req-1",
		ExecDecision:   entity.DecisionApproved,
	})
	if err == nil {
		t.Error("expected error when no approval queue is configured")
	}
}

func TestEngine_OverrideTurnContext(t *testing.T) {
	e := newTestEngine(&LLMResponse{Content: "x"}, nil)

	if _, err := e.Submit(context.Background(), entity.Submission{
		Kind:      entity.SubOverrideTurnContext,
		Overrides: &entity.TurnContextConfig{Model: "new-model"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := e.TurnContext().Model(); got != "new-model" {
		t.Errorf("expected model override to apply, got %q", got)
	}
}

func TestEngine_Compact_EmitsCompactedEvent(t *testing.T) {
	e := newTestEngine(&LLMResponse{Content: "x"}, nil)
	e.mu.Lock()
	e.history = make([]LLMMessage, 0, 50)
	for i := 0; i < 50; i++ {
		e.history = append(e.history, LLMMessage{Role: "user", Content: "filler"})
	}
	e.mu.Unlock()

	events, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubCompact})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ev entity.AgentEvent
	for ev = range events {
	}
	if ev.Type != entity.EventCompacted {
		t.Errorf("expected compacted event, got %v", ev.Type)
	}
}

func TestEngine_UnsupportedSubmissionKind(t *testing.T) {
	e := newTestEngine(&LLMResponse{Content: "x"}, nil)
	if _, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubmissionKind("bogus")}); err == nil {
		t.Error("expected error for unsupported submission kind")
	}
}

func TestEngine_Rollout_JournalsTurnAndDrainsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	w, err := rollout.NewWriter(dir, rollout.LayoutFlat, "sess1", time.Now().UTC())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	e := newTestEngine(&LLMResponse{Content: "hello there"}, nil)
	e.SetRollout(w)

	events, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubUserInput, UserText: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range events {
	}

	if _, err := e.Submit(context.Background(), entity.Submission{Kind: entity.SubShutdown}); err != nil {
		t.Fatalf("unexpected error on shutdown: %v", err)
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("expected rollout file to exist after shutdown: %v", err)
	}
	defer f.Close()

	var kinds []rollout.LineKind
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line rollout.RolloutLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		kinds = append(kinds, line.Type)
	}
	// SetRollout's initial turn_context line, then the user message and the
	// final assistant message appended by startTurn.
	if len(kinds) < 3 {
		t.Fatalf("expected at least 3 journaled lines, got %d: %+v", len(kinds), kinds)
	}
	if kinds[0] != rollout.LineTurnContext {
		t.Errorf("expected first line to be turn_context, got %s", kinds[0])
	}

	if err := w.Append(rollout.RolloutLine{}); err == nil {
		t.Error("expected writer to be closed after engine shutdown")
	}
}
