package entity

import "fmt"

// ResponseItem is one atom of conversation history: a message, a reasoning
// block, a function call, a function-call output, a local-shell call, a
// web-search call, a custom-tool call/output, or a compaction marker.
//
// This is a closed set (spec 3 "Conversation"); adding a provider means
// adding a Kind, not a new interface method, matching the "closed enum plus
// a trait with a small number of methods" design note (spec 9).
type ResponseItem interface {
	Kind() ResponseItemKind
}

// ResponseItemKind enumerates the closed set of ResponseItem variants.
type ResponseItemKind string

const (
	KindMessage            ResponseItemKind = "message"
	KindReasoning          ResponseItemKind = "reasoning"
	KindFunctionCall       ResponseItemKind = "function_call"
	KindFunctionCallOutput ResponseItemKind = "function_call_output"
	KindLocalShellCall     ResponseItemKind = "local_shell_call"
	KindWebSearchCall      ResponseItemKind = "web_search_call"
	KindCustomToolCall     ResponseItemKind = "custom_tool_call"
	KindCustomToolCallOut  ResponseItemKind = "custom_tool_call_output"
	KindCompacted          ResponseItemKind = "compacted"
)

// Role is the speaker of a MessageItem.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentPart is one piece of a message's content: text or an image.
type ContentPart struct {
	Type     string `json:"type"` // "input_text" | "output_text" | "input_image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data: URL or remote URL
	MimeType string `json:"mime_type,omitempty"`
}

// MessageItem is a user/assistant/system message carrying text and/or images.
type MessageItem struct {
	role    Role
	content []ContentPart
}

// NewMessageItem constructs a validated MessageItem.
func NewMessageItem(role Role, content []ContentPart) (*MessageItem, error) {
	if role == "" {
		return nil, fmt.Errorf("response_item: role must not be empty")
	}
	return &MessageItem{role: role, content: content}, nil
}

func (m *MessageItem) Kind() ResponseItemKind { return KindMessage }
func (m *MessageItem) Role() Role             { return m.role }
func (m *MessageItem) Content() []ContentPart { return m.content }

// Text concatenates every text content part, dropping images.
func (m *MessageItem) Text() string {
	out := ""
	for _, p := range m.content {
		if p.Type == "input_text" || p.Type == "output_text" {
			out += p.Text
		}
	}
	return out
}

// ReasoningSummary is one summarized reasoning segment.
type ReasoningSummary struct {
	Text string `json:"text"`
}

// ReasoningItem is a model "thinking" block: a summary plus an optional
// opaque encrypted payload that counts against tokens but cannot be read.
type ReasoningItem struct {
	Summary          []ReasoningSummary
	Content          []string // plaintext reasoning content, when the provider exposes it
	EncryptedContent string   // opaque, base64; counts against tokens via a size heuristic
}

func (r *ReasoningItem) Kind() ResponseItemKind { return KindReasoning }

// FunctionCallItem is a model-issued tool call that must eventually be
// paired with a FunctionCallOutputItem bearing the same CallID.
type FunctionCallItem struct {
	CallID    string
	Name      string
	Arguments string // raw JSON string, as emitted by the provider
}

func (f *FunctionCallItem) Kind() ResponseItemKind { return KindFunctionCall }

// FunctionCallOutputItem pairs with a FunctionCallItem by CallID.
type FunctionCallOutputItem struct {
	CallID  string
	Content string
	Success bool
	Images  []ContentPart // input_image content items materialized by the tool
}

func (f *FunctionCallOutputItem) Kind() ResponseItemKind { return KindFunctionCallOutput }

// LocalShellAction is the exec payload of a LocalShellCallItem.
type LocalShellAction struct {
	Command          []string
	WorkingDirectory string
	User             string
}

// LocalShellCallItem is a shell invocation issued by the model.
type LocalShellCallItem struct {
	CallID string
	Action LocalShellAction
}

func (l *LocalShellCallItem) Kind() ResponseItemKind { return KindLocalShellCall }

// WebSearchCallItem records a model-issued web search action.
type WebSearchCallItem struct {
	CallID string
	Query  string
}

func (w *WebSearchCallItem) Kind() ResponseItemKind { return KindWebSearchCall }

// CustomToolCallItem is a non-function "custom tool" call (e.g. apply_patch).
type CustomToolCallItem struct {
	CallID string
	Name   string
	Input  string
}

func (c *CustomToolCallItem) Kind() ResponseItemKind { return KindCustomToolCall }

// CustomToolCallOutputItem pairs with a CustomToolCallItem by CallID.
type CustomToolCallOutputItem struct {
	CallID string
	Output string
}

func (c *CustomToolCallOutputItem) Kind() ResponseItemKind { return KindCustomToolCallOut }

// CompactedItem replaces a prefix of history with a model-written summary.
type CompactedItem struct {
	Message string
}

func (c *CompactedItem) Kind() ResponseItemKind { return KindCompacted }
