package context

import "strings"

// ModelFamily groups models that share a token-estimation profile.
// Ported from original_source/codex-rs/core/src/context_analyzer.rs so the
// heuristic constants match the reference implementation exactly rather
// than being re-derived informally.
type ModelFamily int

const (
	FamilyUnknown ModelFamily = iota
	FamilyClaude
	FamilyGPT4
	FamilyGPT35
)

// GetModelFamily classifies a model slug into a ModelFamily.
func GetModelFamily(model string) ModelFamily {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return FamilyClaude
	case strings.HasPrefix(model, "gpt-4"):
		return FamilyGPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return FamilyGPT35
	default:
		return FamilyUnknown
	}
}

type tokenRatio struct {
	charsPerToken float64
	wordsPerToken float64
	codeMultiplier float64
}

var ratios = map[ModelFamily]tokenRatio{
	FamilyClaude:  {charsPerToken: 3.8, wordsPerToken: 0.72, codeMultiplier: 1.15},
	FamilyGPT4:    {charsPerToken: 3.5, wordsPerToken: 0.7, codeMultiplier: 1.2},
	FamilyGPT35:   {charsPerToken: 3.3, wordsPerToken: 0.68, codeMultiplier: 1.25},
	FamilyUnknown: {charsPerToken: 3.5, wordsPerToken: 0.7, codeMultiplier: 1.2},
}

// EstimateTokens estimates the token count of text for an unknown model family.
func EstimateTokens(text string) int {
	return EstimateTokensForModel(text, FamilyUnknown)
}

// EstimateTokensForModel estimates tokens with model-family-specific ratios,
// applying a code-content multiplier when the text looks like source code.
func EstimateTokensForModel(text string, family ModelFamily) int {
	if text == "" {
		return 0
	}

	charCount := len([]rune(text))
	wordCount := len(strings.Fields(text))

	r := ratios[family]
	charEstimate := int(float64(charCount) / r.charsPerToken)
	wordEstimate := int(float64(wordCount) / r.wordsPerToken)

	if hasCodeIndicators(text) {
		return int(float64(charEstimate+wordEstimate) / 2.0 * r.codeMultiplier)
	}
	return (charEstimate*2 + wordEstimate) / 3
}

func hasCodeIndicators(text string) bool {
	return strings.Contains(text, "{") ||
		strings.Contains(text, "}") ||
		strings.Contains(text, "function") ||
		strings.Contains(text, "def") ||
		strings.Contains(text, "```")
}

// ImageTokens estimates the token cost of one image content item.
// Base64 data: URLs double the base estimate (spec 4.J).
func ImageTokens(imageURL string, family ModelFamily) int {
	base := 85
	if family == FamilyClaude {
		base = 65
	}
	if strings.HasPrefix(imageURL, "data:") {
		return base * 2
	}
	return base
}

// EncryptedReasoningTokens estimates the token cost of an opaque encrypted
// reasoning payload from its base64-encoded length: decode to raw bytes
// (len*3/4) then apply a further /4 heuristic for token density.
func EncryptedReasoningTokens(encryptedLen int) int {
	return (encryptedLen * 3 / 4) / 4
}

// Breakdown is the per-category token accounting that drives the
// auto-compact trigger (spec 3 "Streaming state", spec 4.J).
type Breakdown struct {
	SystemPrompt int
	Conversation int
	Tools        int
}

// Total returns the sum of all three categories.
func (b Breakdown) Total() int {
	return b.SystemPrompt + b.Conversation + b.Tools
}
