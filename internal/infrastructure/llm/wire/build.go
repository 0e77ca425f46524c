// Package wire builds the shared tagged-record intermediate that both the
// OpenAI and Anthropic/Bedrock wire codecs consume, and carries the
// reasoning-anchoring pass common to both (spec 4.A). Ported from
// original_source/codex-rs/codex-api/src/requests/chat.rs's
// ChatRequestBuilder::build, generalized from serde_json::Value into typed
// Go records.
package wire

import (
	"strings"

	"github.com/codex-go/codex/internal/domain/entity"
)

// ContentItem is one piece of a Message's array-shaped content.
type ContentItem struct {
	Type     string // "text" | "image_url"
	Text     string
	ImageURL string // data: URL or remote URL
}

// ToolCallRecord is one tool invocation attached to an assistant Message.
type ToolCallRecord struct {
	ID        string
	Type      string // "function" | "local_shell_call" | "custom"
	Name      string
	Arguments string // raw JSON string; only set for Type=="function"
	Action    *entity.LocalShellAction
	Input     string // only set for Type=="custom"
	Status    string
}

// Message is the shared tagged record: a system/user/assistant/tool turn.
// Assistant messages may carry ToolCalls (grouped, Chat-Completions style)
// plus an accumulated Reasoning string attached from the anchoring pass.
type Message struct {
	Role       string
	Text       string // used when Content is empty (no images)
	Content    []ContentItem
	HasImages  bool
	ToolCalls  []ToolCallRecord
	ToolCallID string // only set for Role=="tool"
	Reasoning  string
}

// Build runs the full spec 4.A reasoning-anchor + message-emission pass over
// conversation history and returns the shared tagged-record sequence
// (system message first).
func Build(instructions string, history []entity.ResponseItem) []Message {
	messages := []Message{{Role: "system", Text: instructions}}

	reasoningByAnchor := map[int]string{}

	lastEmittedRole := ""
	for _, item := range history {
		switch v := item.(type) {
		case *entity.MessageItem:
			lastEmittedRole = string(v.Role())
		case *entity.FunctionCallItem, *entity.LocalShellCallItem:
			lastEmittedRole = "assistant"
		case *entity.FunctionCallOutputItem:
			lastEmittedRole = "tool"
		}
	}

	lastUserIndex := -1
	for idx, item := range history {
		if m, ok := item.(*entity.MessageItem); ok && m.Role() == entity.RoleUser {
			lastUserIndex = idx
		}
	}

	// Attach reasoning blocks to their anchor, scanning forward from the
	// last user message only (spec: "scan forward from the last user
	// message"). Empty reasoning is dropped.
	if lastEmittedRole != string(entity.RoleUser) {
		for idx, item := range history {
			if lastUserIndex >= 0 && idx <= lastUserIndex {
				continue
			}
			r, ok := item.(*entity.ReasoningItem)
			if !ok {
				continue
			}
			text := reasoningText(r)
			if strings.TrimSpace(text) == "" {
				continue
			}

			attached := false
			if idx > 0 {
				if m, ok := history[idx-1].(*entity.MessageItem); ok && m.Role() == entity.RoleAssistant {
					reasoningByAnchor[idx-1] = reasoningByAnchor[idx-1] + text
					attached = true
				}
			}
			if !attached && idx+1 < len(history) {
				switch next := history[idx+1].(type) {
				case *entity.FunctionCallItem, *entity.LocalShellCallItem:
					reasoningByAnchor[idx+1] = reasoningByAnchor[idx+1] + text
				case *entity.MessageItem:
					if next.Role() == entity.RoleAssistant {
						reasoningByAnchor[idx+1] = reasoningByAnchor[idx+1] + text
					}
				}
			}
		}
	}

	var lastAssistantText string
	haveLastAssistantText := false

	for idx, item := range history {
		switch v := item.(type) {
		case *entity.MessageItem:
			text := v.Text()
			var contentItems []ContentItem
			sawImage := false
			for _, c := range v.Content() {
				switch c.Type {
				case "input_text", "output_text":
					contentItems = append(contentItems, ContentItem{Type: "text", Text: c.Text})
				case "input_image":
					sawImage = true
					contentItems = append(contentItems, ContentItem{Type: "image_url", ImageURL: c.ImageURL})
				}
			}

			role := string(v.Role())
			if role == "assistant" {
				if haveLastAssistantText && lastAssistantText == text {
					continue
				}
				lastAssistantText = text
				haveLastAssistantText = true
			}

			msg := Message{Role: role}
			if role == "assistant" || !sawImage {
				msg.Text = text
			} else {
				msg.Content = contentItems
				msg.HasImages = true
			}
			if role == "assistant" {
				if r, ok := reasoningByAnchor[idx]; ok {
					msg.Reasoning = r
				}
			}
			messages = append(messages, msg)

		case *entity.FunctionCallItem:
			reasoning := reasoningByAnchor[idx]
			pushToolCall(&messages, ToolCallRecord{
				ID: v.CallID, Type: "function", Name: v.Name, Arguments: v.Arguments,
			}, reasoning)

		case *entity.LocalShellCallItem:
			reasoning := reasoningByAnchor[idx]
			action := v.Action
			pushToolCall(&messages, ToolCallRecord{
				ID: v.CallID, Type: "local_shell_call", Action: &action, Status: "completed",
			}, reasoning)

		case *entity.FunctionCallOutputItem:
			if len(v.Images) > 0 {
				items := []ContentItem{{Type: "text", Text: v.Content}}
				for _, img := range v.Images {
					items = append(items, ContentItem{Type: "image_url", ImageURL: img.ImageURL})
				}
				messages = append(messages, Message{Role: "tool", ToolCallID: v.CallID, Content: items, HasImages: true})
			} else {
				messages = append(messages, Message{Role: "tool", ToolCallID: v.CallID, Text: v.Content})
			}

		case *entity.CustomToolCallItem:
			reasoning := reasoningByAnchor[idx]
			pushToolCall(&messages, ToolCallRecord{
				ID: v.CallID, Type: "custom", Name: v.Name, Input: v.Input,
			}, reasoning)

		case *entity.CustomToolCallOutputItem:
			messages = append(messages, Message{Role: "tool", ToolCallID: v.CallID, Text: v.Output})

		case *entity.ReasoningItem, *entity.WebSearchCallItem, *entity.CompactedItem:
			continue
		}
	}

	return messages
}

func reasoningText(r *entity.ReasoningItem) string {
	var b strings.Builder
	for _, s := range r.Summary {
		b.WriteString(s.Text)
	}
	for _, c := range r.Content {
		b.WriteString(c)
	}
	return b.String()
}

// pushToolCall implements Chat-Completions grouping: consecutive tool calls
// are folded into one assistant message with content=nil, tool_calls=[...]
// (spec: "Consecutive assistant function calls are grouped into one
// assistant message").
func pushToolCall(messages *[]Message, call ToolCallRecord, reasoning string) {
	msgs := *messages
	if n := len(msgs); n > 0 {
		last := &msgs[n-1]
		if last.Role == "assistant" && last.Text == "" && len(last.Content) == 0 && len(last.ToolCalls) > 0 {
			last.ToolCalls = append(last.ToolCalls, call)
			if reasoning != "" {
				if last.Reasoning != "" {
					last.Reasoning += "\n" + reasoning
				} else {
					last.Reasoning = reasoning
				}
			}
			return
		}
	}
	*messages = append(msgs, Message{
		Role:      "assistant",
		ToolCalls: []ToolCallRecord{call},
		Reasoning: reasoning,
	})
}
