// Package anthropic renders the shared wire.Message sequence as a
// strictly-alternating Anthropic/Bedrock {system, messages[]} payload (spec
// 4.A "Anthropic (Bedrock) encoding"). Ported from
// original_source/codex-rs/codex-api/src/requests/chat.rs's
// transform_messages_for_claude + validate_tool_pairing.
package anthropic

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/codex-go/codex/internal/infrastructure/llm/wire"
	"go.uber.org/zap"
)

// ContentBlock is one Anthropic content item: text, tool_use, tool_result,
// or image.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Source    *ImageSource    `json:"source,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Message is one strictly-alternating Bedrock message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Transform applies rules 1-5 of spec 4.A: tool-role -> tool_result,
// assistant tool_calls -> tool_use, text-before-tool_use ordering,
// same-role merge, and the deferred-flush rule for interstitial user
// messages while tool_use ids are unresolved.
func Transform(messages []wire.Message) []Message {
	var result []Message
	var pendingToolResults []ContentBlock
	var pendingAssistant []ContentBlock
	var pendingUser []ContentBlock
	pendingToolUseIDs := map[string]bool{}

	flushAssistant := func() {
		if len(pendingAssistant) == 0 {
			return
		}
		sortAssistantContent(pendingAssistant)
		result = append(result, Message{Role: "assistant", Content: pendingAssistant})
		pendingAssistant = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue

		case "tool":
			delete(pendingToolUseIDs, msg.ToolCallID)
			content := msg.Text
			if msg.HasImages {
				// Bedrock tool_result content is always a string; non-text
				// tool output is serialized rather than passed as blocks
				// (matches the original's content_str derivation).
				b, _ := json.Marshal(msg.Content)
				content = string(b)
			}
			pendingToolResults = append(pendingToolResults, ContentBlock{
				Type: "tool_result", ToolUseID: msg.ToolCallID, Content: content,
			})
			if len(pendingToolUseIDs) == 0 && len(pendingAssistant) > 0 {
				flushAssistant()
			}

		case "assistant":
			if len(pendingUser) > 0 {
				result = append(result, Message{Role: "user", Content: pendingUser})
				pendingUser = nil
			}
			if len(pendingToolResults) > 0 {
				if n := len(result); n > 0 && result[n-1].Role == "user" {
					result[n-1].Content = append(result[n-1].Content, pendingToolResults...)
				} else {
					result = append(result, Message{Role: "user", Content: pendingToolResults})
				}
				pendingToolResults = nil
			}

			if strings.TrimSpace(msg.Text) != "" {
				pendingAssistant = append(pendingAssistant, ContentBlock{Type: "text", Text: msg.Text})
			}
			for _, c := range msg.Content {
				if c.Type == "text" && strings.TrimSpace(c.Text) == "" {
					continue
				}
				pendingAssistant = append(pendingAssistant, renderContentItem(c))
			}

			for _, tc := range msg.ToolCalls {
				input := json.RawMessage("{}")
				if tc.Type == "function" {
					if tc.Arguments != "" && json.Valid([]byte(tc.Arguments)) {
						input = json.RawMessage(tc.Arguments)
					}
				} else if tc.Type == "custom" && tc.Input != "" && json.Valid([]byte(tc.Input)) {
					input = json.RawMessage(tc.Input)
				}
				pendingToolUseIDs[tc.ID] = true
				pendingAssistant = append(pendingAssistant, ContentBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input,
				})
			}
			continue

		case "user":
			if len(pendingToolUseIDs) == 0 && len(pendingAssistant) > 0 {
				flushAssistant()
			}
			if len(pendingToolResults) > 0 {
				pendingUser = append(pendingUser, pendingToolResults...)
				pendingToolResults = nil
			}
			if strings.TrimSpace(msg.Text) != "" {
				pendingUser = append(pendingUser, ContentBlock{Type: "text", Text: msg.Text})
			}
			for _, c := range msg.Content {
				if c.Type == "text" && strings.TrimSpace(c.Text) == "" {
					continue
				}
				pendingUser = append(pendingUser, renderContentItem(c))
			}
			continue

		default:
			continue
		}
	}

	if len(pendingAssistant) > 0 {
		sortAssistantContent(pendingAssistant)
		result = append(result, Message{Role: "assistant", Content: pendingAssistant})
	}
	if len(pendingToolResults) > 0 {
		pendingUser = append(pendingUser, pendingToolResults...)
	}
	if len(pendingUser) > 0 {
		result = append(result, Message{Role: "user", Content: pendingUser})
	}

	return result
}

// renderContentItem re-encodes a wire.ContentItem to Bedrock shape: images
// with a data: URL become base64 image blocks (spec rule 6).
func renderContentItem(c wire.ContentItem) ContentBlock {
	if c.Type != "image_url" {
		return ContentBlock{Type: "text", Text: c.Text}
	}
	if strings.HasPrefix(c.ImageURL, "data:") {
		if comma := strings.IndexByte(c.ImageURL, ','); comma >= 0 {
			header := c.ImageURL[5:comma]
			data := c.ImageURL[comma+1:]
			mediaType := "image/png"
			if semi := strings.IndexByte(header, ';'); semi >= 0 {
				mediaType = header[:semi]
			} else if header != "" {
				mediaType = header
			}
			return ContentBlock{Type: "image", Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data}}
		}
	}
	return ContentBlock{Type: "text", Text: c.ImageURL}
}

// sortAssistantContent orders text blocks before tool_use blocks within one
// assistant message (spec rule 3); a stable sort preserves relative order
// within each group.
func sortAssistantContent(content []ContentBlock) {
	sort.SliceStable(content, func(i, j int) bool {
		return content[i].Type == "text" && content[j].Type == "tool_use"
	})
}

// ValidatePairing logs (does not mutate) every tool_use whose immediately
// following message lacks a matching tool_result (spec: "Validation").
func ValidatePairing(messages []Message, logger *zap.Logger) {
	for idx, msg := range messages {
		var toolUseIDs []string
		for _, c := range msg.Content {
			if c.Type == "tool_use" {
				toolUseIDs = append(toolUseIDs, c.ID)
			}
		}
		if len(toolUseIDs) == 0 {
			continue
		}
		if idx+1 >= len(messages) {
			logger.Warn("anthropic wire: tool_use with no following message", zap.Strings("ids", toolUseIDs))
			continue
		}
		next := messages[idx+1]
		resultIDs := map[string]bool{}
		for _, c := range next.Content {
			if c.Type == "tool_result" {
				resultIDs[c.ToolUseID] = true
			}
		}
		for _, id := range toolUseIDs {
			if !resultIDs[id] {
				logger.Warn("anthropic wire: tool_use missing matching tool_result", zap.String("id", id))
			}
		}
	}
}
