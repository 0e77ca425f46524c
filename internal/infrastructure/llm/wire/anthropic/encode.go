package anthropic

import (
	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/infrastructure/llm/wire"
	"github.com/codex-go/codex/internal/infrastructure/llm/wire/openai"
	"go.uber.org/zap"
)

// Request is the Bedrock/Anthropic request payload (spec 4.A "Anthropic
// (Bedrock) encoding").
type Request struct {
	AnthropicVersion string      `json:"anthropic_version"`
	Model            string      `json:"model"`
	MaxTokens        int         `json:"max_tokens"`
	System           string      `json:"system"`
	Messages         []Message   `json:"messages"`
	Tools            []Tool      `json:"tools,omitempty"`
	ToolChoice       *ToolChoice `json:"tool_choice,omitempty"`
}

type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type ToolChoice struct {
	Type string `json:"type"`
}

const defaultMaxTokens = 16384

// Encode builds the Bedrock request. Tools are re-shaped from OpenAI's
// {type:function, function:{name,description,parameters}} into
// {name,description,input_schema} (spec rule 7); tool_choice is "auto"
// whenever tools are present. Bedrock gets no OpenAI-specific headers
// because SigV4 signing is sensitive (spec 4.B), so Encode returns only a
// body.
func Encode(model, instructions string, history []entity.ResponseItem, tools []openai.Tool, logger *zap.Logger) *Request {
	messages := wire.Build(instructions, history)
	bedrockMessages := Transform(messages)
	ValidatePairing(bedrockMessages, logger)

	req := &Request{
		AnthropicVersion: "bedrock-2023-05-31",
		Model:            model,
		MaxTokens:        defaultMaxTokens,
		System:           instructions,
		Messages:         bedrockMessages,
	}

	if len(tools) > 0 {
		for _, t := range tools {
			req.Tools = append(req.Tools, Tool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: t.Function.Parameters,
			})
		}
		req.ToolChoice = &ToolChoice{Type: "auto"}
	}

	return req
}
