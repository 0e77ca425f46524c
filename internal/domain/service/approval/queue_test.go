package approval

import (
	"testing"

	"github.com/codex-go/codex/internal/domain/entity"
)

func TestQueue_SingleRequestBecomesActive(t *testing.T) {
	q := NewQueue()
	req := &entity.ApprovalRequest{ID: "r1", Kind: entity.ApprovalExec}
	ch := q.Enqueue(req)

	if active := q.Active(); active == nil || active.ID != "r1" {
		t.Fatalf("expected r1 active, got %+v", active)
	}

	if !q.Resolve(Decision{RequestID: "r1", ExecDecision: entity.DecisionApproved}) {
		t.Fatal("expected Resolve to succeed for active request")
	}
	select {
	case d := <-ch:
		if d.ExecDecision != entity.DecisionApproved {
			t.Errorf("expected approved decision, got %+v", d)
		}
	default:
		t.Fatal("expected decision delivered on channel")
	}
}

func TestQueue_PriorityOrdersExecAheadOfPlan(t *testing.T) {
	q := NewQueue()
	q.Enqueue(&entity.ApprovalRequest{ID: "b0", Kind: entity.ApprovalExec}) // becomes active immediately

	plan := &entity.ApprovalRequest{ID: "plan1", Kind: entity.ApprovalPlan}
	q.Enqueue(plan) // queued first

	exec := &entity.ApprovalRequest{ID: "exec1", Kind: entity.ApprovalExec}
	q.Enqueue(exec) // queued after plan, but higher priority

	q.Resolve(Decision{RequestID: "b0", ExecDecision: entity.DecisionApproved})

	if active := q.Active(); active == nil || active.ID != "exec1" {
		t.Fatalf("expected exec1 promoted ahead of plan1, got %+v", active)
	}
}

func TestQueue_AbortActiveAndDrain(t *testing.T) {
	q := NewQueue()
	execCh := q.Enqueue(&entity.ApprovalRequest{ID: "exec1", Kind: entity.ApprovalExec})
	patchCh := q.Enqueue(&entity.ApprovalRequest{ID: "patch1", Kind: entity.ApprovalApplyPatch})

	q.AbortActiveAndDrain()

	d1 := <-execCh
	if d1.ExecDecision != entity.DecisionAbort {
		t.Errorf("expected exec abort decision, got %+v", d1)
	}
	d2 := <-patchCh
	if d2.PatchDecision != entity.DecisionAbort {
		t.Errorf("expected patch abort decision, got %+v", d2)
	}
	if q.Active() != nil {
		t.Error("expected queue empty after abort-and-drain")
	}
}

func TestMultiQuestionState_CollectsAnswersInOrder(t *testing.T) {
	s := NewMultiQuestionState("call-1", []QuestionItem{
		{Header: "env", Question: "which environment?"},
		{Header: "confirm", Question: "proceed?", MultiSelect: true, Options: []string{"yes", "no"}},
	})

	q, ok := s.Current()
	if !ok || q.Header != "env" {
		t.Fatalf("expected first question 'env', got %+v, %v", q, ok)
	}
	s.Answer("staging")

	q, ok = s.Current()
	if !ok || q.Header != "confirm" {
		t.Fatalf("expected second question 'confirm', got %+v, %v", q, ok)
	}
	s.AnswerMultiSelect([]string{"yes"})

	if !s.Done() {
		t.Fatal("expected state done after both questions answered")
	}
	answers := s.CollectedAnswers()
	if answers["env"] != "staging" || answers["confirm"] != "yes" {
		t.Errorf("unexpected answers: %+v", answers)
	}
}

func TestMultiQuestionState_EmptyMultiSelectBecomesNoSelectionLiteral(t *testing.T) {
	s := NewMultiQuestionState("call-1", []QuestionItem{
		{Header: "tags", Question: "pick tags", MultiSelect: true, Options: []string{"a", "b"}},
	})
	s.AnswerMultiSelect(nil)
	if got := s.CollectedAnswers()["tags"]; got != "(no selection)" {
		t.Errorf("expected literal '(no selection)', got %q", got)
	}
}

func TestOptionLabel_ChecksSelected(t *testing.T) {
	selected := map[string]bool{"a": true}
	if got := OptionLabel("a", selected); got != "[x] a" {
		t.Errorf("expected checked label, got %q", got)
	}
	if got := OptionLabel("b", selected); got != "[ ] b" {
		t.Errorf("expected unchecked label, got %q", got)
	}
}
