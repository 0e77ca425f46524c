package context

import "github.com/codex-go/codex/internal/domain/entity"

// AnalyzeContext computes a token Breakdown for a prospective request,
// mirroring original_source/codex-rs/core/src/context_analyzer.rs's
// analyze_context_with_model, generalized from Rust ResponseItem variants to
// this module's entity.ResponseItem interface.
func AnalyzeContext(systemPrompt string, history []entity.ResponseItem, toolsDefinition string, family ModelFamily) Breakdown {
	var b Breakdown
	if systemPrompt != "" {
		b.SystemPrompt = EstimateTokensForModel(systemPrompt, family)
	}
	for _, item := range history {
		b.Conversation += itemTokens(item, family)
	}
	if toolsDefinition != "" {
		b.Tools = EstimateTokensForModel(toolsDefinition, family)
	}
	return b
}

func itemTokens(item entity.ResponseItem, family ModelFamily) int {
	switch v := item.(type) {
	case *entity.MessageItem:
		tokens := EstimateTokensForModel(string(v.Role()), family)
		for _, part := range v.Content() {
			tokens += contentPartTokens(part, family)
		}
		return tokens
	case *entity.ReasoningItem:
		tokens := 0
		for _, s := range v.Summary {
			tokens += EstimateTokensForModel(s.Text, family)
		}
		for _, c := range v.Content {
			tokens += EstimateTokensForModel(c, family)
		}
		if v.EncryptedContent != "" {
			tokens += EncryptedReasoningTokens(len(v.EncryptedContent))
		}
		return tokens
	case *entity.FunctionCallItem:
		return EstimateTokensForModel(v.Name, family) +
			EstimateTokensForModel(v.Arguments, family) +
			EstimateTokensForModel(v.CallID, family)
	case *entity.FunctionCallOutputItem:
		return EstimateTokensForModel(v.CallID, family) + EstimateTokensForModel(v.Content, family)
	case *entity.CustomToolCallItem:
		return EstimateTokensForModel(v.Name, family) +
			EstimateTokensForModel(v.Input, family) +
			EstimateTokensForModel(v.CallID, family)
	case *entity.CustomToolCallOutputItem:
		return EstimateTokensForModel(v.CallID, family) + EstimateTokensForModel(v.Output, family)
	case *entity.LocalShellCallItem:
		tokens := 0
		if v.CallID != "" {
			tokens += EstimateTokensForModel(v.CallID, family)
		}
		for _, part := range v.Action.Command {
			tokens += EstimateTokensForModel(part, family)
		}
		if v.Action.WorkingDirectory != "" {
			tokens += EstimateTokensForModel(v.Action.WorkingDirectory, family)
		}
		if v.Action.User != "" {
			tokens += EstimateTokensForModel(v.Action.User, family)
		}
		return tokens
	case *entity.WebSearchCallItem:
		if v.Query != "" {
			return EstimateTokensForModel(v.Query, family)
		}
		return 10
	case *entity.CompactedItem:
		return EstimateTokensForModel(v.Message, family)
	default:
		return 0
	}
}

func contentPartTokens(part entity.ContentPart, family ModelFamily) int {
	if part.Type == "input_image" {
		return ImageTokens(part.ImageURL, family)
	}
	return EstimateTokensForModel(part.Text, family)
}
