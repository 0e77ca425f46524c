// Package openai renders the shared wire.Message sequence as an OpenAI
// Chat-Completions-compatible request body (spec 4.A "OpenAI (Responses)
// encoding"). Grounded on
// original_source/codex-rs/codex-api/src/requests/chat.rs's non-Claude
// branch of ChatRequestBuilder::build.
package openai

import (
	"encoding/json"
	"net/http"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/infrastructure/llm/wire"
)

// Tool is one function tool definition in OpenAI's native shape.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is the assembled Chat-Completions-style request.
type Request struct {
	Model    string        `json:"model"`
	Messages []WireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []Tool        `json:"tools,omitempty"`
}

// WireMessage is one rendered message, matching the shape the original
// assembles with serde_json::json!.
type WireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []WireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Reasoning  string          `json:"reasoning,omitempty"`
}

type WireToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function *WireFunction   `json:"function,omitempty"`
	Status   string          `json:"status,omitempty"`
	Action   json.RawMessage `json:"action,omitempty"`
}

type WireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

// Encode builds the Chat-Completions request body + conversation headers.
// Conversation/subagent headers are attached (spec 4.B: non-Claude providers
// only).
func Encode(model, instructions string, history []entity.ResponseItem, tools []Tool, conversationID, subagentHeader string) (*Request, http.Header) {
	messages := wire.Build(instructions, history)
	out := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, renderMessage(m))
	}

	headers := http.Header{}
	if conversationID != "" {
		headers.Set("conversation_id", conversationID)
	}
	if subagentHeader != "" {
		headers.Set("x-openai-subagent", subagentHeader)
	}

	return &Request{Model: model, Messages: out, Stream: true, Tools: tools}, headers
}

func renderMessage(m wire.Message) WireMessage {
	wm := WireMessage{Role: m.Role, ToolCallID: m.ToolCallID, Reasoning: m.Reasoning}
	switch {
	case len(m.ToolCalls) > 0:
		wm.Content = json.RawMessage("null")
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, renderToolCall(tc))
		}
	case m.HasImages:
		parts := make([]wireContentPart, 0, len(m.Content))
		for _, c := range m.Content {
			if c.Type == "image_url" {
				parts = append(parts, wireContentPart{Type: "image_url", ImageURL: &wireImageURL{URL: c.ImageURL}})
			} else {
				parts = append(parts, wireContentPart{Type: "text", Text: c.Text})
			}
		}
		b, _ := json.Marshal(parts)
		wm.Content = b
	default:
		b, _ := json.Marshal(m.Text)
		wm.Content = b
	}
	return wm
}

func renderToolCall(tc wire.ToolCallRecord) WireToolCall {
	switch tc.Type {
	case "local_shell_call":
		action, _ := json.Marshal(tc.Action)
		return WireToolCall{ID: tc.ID, Type: "local_shell_call", Status: tc.Status, Action: action}
	case "custom":
		return WireToolCall{ID: tc.ID, Type: "custom", Function: &WireFunction{Name: tc.Name, Arguments: tc.Input}}
	default:
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		return WireToolCall{ID: tc.ID, Type: "function", Function: &WireFunction{Name: tc.Name, Arguments: args}}
	}
}
