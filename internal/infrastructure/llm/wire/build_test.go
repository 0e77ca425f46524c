package wire

import (
	"testing"

	"github.com/codex-go/codex/internal/domain/entity"
)

func mustMessage(t *testing.T, role entity.Role, text string) *entity.MessageItem {
	t.Helper()
	m, err := entity.NewMessageItem(role, []entity.ContentPart{{Type: "input_text", Text: text}})
	if err != nil {
		t.Fatalf("NewMessageItem: %v", err)
	}
	return m
}

// TestBuild_GroupsConsecutiveToolCalls ports
// groups_consecutive_tool_calls_into_a_single_assistant_message from
// original_source/codex-rs/codex-api/src/requests/chat.rs.
func TestBuild_GroupsConsecutiveToolCalls(t *testing.T) {
	history := []entity.ResponseItem{
		mustMessage(t, entity.RoleUser, "read these"),
		&entity.FunctionCallItem{CallID: "call-a", Name: "read_file", Arguments: `{"path":"a.txt"}`},
		&entity.FunctionCallItem{CallID: "call-b", Name: "read_file", Arguments: `{"path":"b.txt"}`},
		&entity.FunctionCallItem{CallID: "call-c", Name: "read_file", Arguments: `{"path":"c.txt"}`},
		&entity.FunctionCallOutputItem{CallID: "call-a", Content: "A", Success: true},
		&entity.FunctionCallOutputItem{CallID: "call-b", Content: "B", Success: true},
		&entity.FunctionCallOutputItem{CallID: "call-c", Content: "C", Success: true},
	}

	messages := Build("inst", history)

	// system + user + assistant(tool_calls=[...]) + 3 tool outputs
	if len(messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("expected messages[0] system, got %s", messages[0].Role)
	}
	if messages[1].Role != "user" {
		t.Errorf("expected messages[1] user, got %s", messages[1].Role)
	}

	toolCallsMsg := messages[2]
	if toolCallsMsg.Role != "assistant" {
		t.Fatalf("expected messages[2] assistant, got %s", toolCallsMsg.Role)
	}
	if len(toolCallsMsg.ToolCalls) != 3 {
		t.Fatalf("expected 3 grouped tool calls, got %d", len(toolCallsMsg.ToolCalls))
	}
	wantIDs := []string{"call-a", "call-b", "call-c"}
	for i, want := range wantIDs {
		if toolCallsMsg.ToolCalls[i].ID != want {
			t.Errorf("tool call %d: expected id %s, got %s", i, want, toolCallsMsg.ToolCalls[i].ID)
		}
	}

	for i, want := range wantIDs {
		msg := messages[3+i]
		if msg.Role != "tool" {
			t.Errorf("messages[%d]: expected role tool, got %s", 3+i, msg.Role)
		}
		if msg.ToolCallID != want {
			t.Errorf("messages[%d]: expected tool_call_id %s, got %s", 3+i, want, msg.ToolCallID)
		}
	}
}

func TestBuild_DropsEmptyReasoning(t *testing.T) {
	history := []entity.ResponseItem{
		mustMessage(t, entity.RoleUser, "hi"),
		&entity.ReasoningItem{Summary: []entity.ReasoningSummary{{Text: "   "}}},
		mustMessage(t, entity.RoleAssistant, "hello"),
	}
	messages := Build("inst", history)
	for _, m := range messages {
		if m.Reasoning != "" {
			t.Errorf("expected empty reasoning to be dropped, found %q attached", m.Reasoning)
		}
	}
}

func TestBuild_AttachesReasoningToPrecedingAssistantMessage(t *testing.T) {
	history := []entity.ResponseItem{
		mustMessage(t, entity.RoleUser, "hi"),
		mustMessage(t, entity.RoleAssistant, "hello"),
		&entity.ReasoningItem{Summary: []entity.ReasoningSummary{{Text: "thinking..."}}},
	}
	messages := Build("inst", history)
	// messages: system, user, assistant("hello") <- reasoning attaches here
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[2].Reasoning != "thinking..." {
		t.Errorf("expected reasoning attached to preceding assistant message, got %q", messages[2].Reasoning)
	}
}
