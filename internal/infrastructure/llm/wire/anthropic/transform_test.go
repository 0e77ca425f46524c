package anthropic

import (
	"strings"
	"testing"

	"github.com/codex-go/codex/internal/infrastructure/llm/wire"
)

// TestTransform_DeferredFlushAcrossInterstitialUser ports the "IMPORTANT:
// User messages may appear between tool_calls and tool_results" contract
// from original_source/codex-rs/codex-api/src/requests/chat.rs: the
// assistant tool_use block must not flush until every pending tool_use id
// has a matching tool_result, even if a user message arrives first.
func TestTransform_DeferredFlushAcrossInterstitialUser(t *testing.T) {
	messages := []wire.Message{
		{Role: "system", Text: "inst"},
		{Role: "user", Text: "do two things"},
		{Role: "assistant", ToolCalls: []wire.ToolCallRecord{
			{ID: "call-a", Type: "function", Name: "f", Arguments: "{}"},
			{ID: "call-b", Type: "function", Name: "g", Arguments: "{}"},
		}},
		{Role: "user", Text: "please hurry"}, // interstitial warning
		{Role: "tool", ToolCallID: "call-a", Text: "A"},
		{Role: "tool", ToolCallID: "call-b", Text: "B"},
	}

	out := Transform(messages)

	var assistantIdx = -1
	for i, m := range out {
		if m.Role == "assistant" {
			assistantIdx = i
			break
		}
	}
	if assistantIdx == -1 {
		t.Fatal("expected an assistant message in the transformed output")
	}
	assistant := out[assistantIdx]
	toolUseIDs := map[string]bool{}
	for _, c := range assistant.Content {
		if c.Type == "tool_use" {
			toolUseIDs[c.ID] = true
		}
	}
	if !toolUseIDs["call-a"] || !toolUseIDs["call-b"] {
		t.Fatalf("expected both tool_use ids in the flushed assistant message, got %+v", assistant.Content)
	}

	if assistantIdx+1 >= len(out) {
		t.Fatal("expected a user message with tool_results immediately after the assistant message")
	}
	next := out[assistantIdx+1]
	if next.Role != "user" {
		t.Fatalf("expected tool_use to be immediately followed by a user message, got %s", next.Role)
	}
	resultIDs := map[string]bool{}
	for _, c := range next.Content {
		if c.Type == "tool_result" {
			resultIDs[c.ToolUseID] = true
		}
	}
	if !resultIDs["call-a"] || !resultIDs["call-b"] {
		t.Fatalf("expected both tool_results paired in the next message, got %+v", next.Content)
	}
}

func TestTransform_MergesConsecutiveSameRoleMessages(t *testing.T) {
	messages := []wire.Message{
		{Role: "system", Text: "inst"},
		{Role: "user", Text: "first"},
		{Role: "user", Text: "second"},
	}
	out := Transform(messages)
	if len(out) != 1 {
		t.Fatalf("expected merged single user message, got %d messages", len(out))
	}
	if out[0].Role != "user" {
		t.Fatalf("expected user role, got %s", out[0].Role)
	}
	if len(out[0].Content) != 2 {
		t.Fatalf("expected 2 merged content blocks, got %d", len(out[0].Content))
	}
}

func TestTransform_DropsWhitespaceOnlyText(t *testing.T) {
	messages := []wire.Message{
		{Role: "system", Text: "inst"},
		{Role: "assistant", Text: "   "},
		{Role: "assistant", ToolCalls: []wire.ToolCallRecord{{ID: "call-a", Type: "function", Name: "f", Arguments: "{}"}}},
		{Role: "tool", ToolCallID: "call-a", Text: "ok"},
	}
	out := Transform(messages)
	foundTextBlock := false
	for _, m := range out {
		for _, c := range m.Content {
			if c.Type == "text" {
				foundTextBlock = true
				if strings.TrimSpace(c.Text) == "" {
					t.Errorf("expected whitespace-only text to be dropped, found %q", c.Text)
				}
			}
		}
	}
	if foundTextBlock {
		t.Error("expected no text blocks at all once the whitespace-only one is dropped")
	}
}

func TestRenderContentItem_ReencodesDataURLImage(t *testing.T) {
	block := renderContentItem(wire.ContentItem{Type: "image_url", ImageURL: "data:image/png;base64,QUJD"})
	if block.Type != "image" {
		t.Fatalf("expected image block, got %s", block.Type)
	}
	if block.Source == nil || block.Source.MediaType != "image/png" || block.Source.Data != "QUJD" {
		t.Fatalf("unexpected source: %+v", block.Source)
	}
}
