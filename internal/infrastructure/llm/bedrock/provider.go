// Package bedrock implements the Provider interface against AWS Bedrock's
// Converse/ConverseStream APIs, used to reach Anthropic Claude models hosted
// on Bedrock (spec 4.B "Bedrock transport"). SigV4 request signing and event-
// stream framing are handled by the AWS SDK, not reimplemented here.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service"
	domaintool "github.com/codex-go/codex/internal/domain/tool"
	llm "github.com/codex-go/codex/internal/infrastructure/llm"
	"go.uber.org/zap"
)

func init() {
	llm.RegisterFactory("bedrock", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		p, err := New(cfg, logger)
		if err != nil {
			logger.Error("bedrock: failed to construct provider, returning unavailable stub", zap.Error(err))
			return &unavailableProvider{name: cfg.Name, err: err}
		}
		return p
	})
}

// Provider implements llm.Provider against AWS Bedrock's Converse API.
type Provider struct {
	client *bedrockruntime.Client
	name   string
	models []string
	logger *zap.Logger
}

// New builds a Bedrock provider using the default AWS credential chain
// (environment, shared config, IAM role) unless explicit credentials are
// present in cfg.
func New(cfg llm.ProviderConfig, logger *zap.Logger) (*Provider, error) {
	region := cfg.BaseURL
	if region == "" {
		region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if accessKey, secretKey, ok := splitAPIKey(cfg.APIKey); ok {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Provider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		name:   cfg.Name,
		models: cfg.Models,
		logger: logger.With(zap.String("provider", cfg.Name), zap.String("type", "bedrock")),
	}, nil
}

// splitAPIKey parses an "access_key:secret_key" shaped APIKey field; the
// common case is an empty APIKey, which signals the default credential chain.
func splitAPIKey(apiKey string) (accessKey, secretKey string, ok bool) {
	idx := strings.IndexByte(apiKey, ':')
	if idx <= 0 {
		return "", "", false
	}
	return apiKey[:idx], apiKey[idx+1:], true
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return true
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.client != nil
}

// Generate implements service.LLMClient (non-streaming) by draining
// GenerateStream's delta channel internally.
func (p *Provider) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	deltaCh := make(chan service.StreamChunk, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range deltaCh {
		}
	}()
	resp, err := p.GenerateStream(ctx, req, deltaCh)
	close(deltaCh)
	<-done
	return resp, err
}

// GenerateStream implements service.LLMClient via Bedrock's ConverseStream API.
func (p *Provider) GenerateStream(ctx context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	messages, system := p.convertMessages(req.Messages)

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
	}
	if system != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := int32(math.Min(float64(req.MaxTokens), math.MaxInt32))
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(maxTokens)}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = p.convertTools(req.Tools)
	}

	out, err := p.client.ConverseStream(ctx, converseReq)
	if err != nil {
		return nil, fmt.Errorf("bedrock: ConverseStream: %w", err)
	}

	return p.drainStream(ctx, out, req.Model, deltaCh)
}

func (p *Provider) drainStream(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, model string, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	stream := out.GetStream()
	defer stream.Close()

	result := &service.LLMResponse{ModelUsed: model}
	var textBuf strings.Builder
	var currentToolCall *entity.ToolCallInfo
	var toolInputBuf strings.Builder

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					p.logger.Warn("bedrock: event stream closed with error", zap.Error(err))
					return result, fmt.Errorf("bedrock: stream error: %w", err)
				}
				result.Content = textBuf.String()
				return result, nil
			}
			switch v := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentToolCall = &entity.ToolCallInfo{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					toolInputBuf.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						textBuf.WriteString(delta.Value)
						deltaCh <- service.StreamChunk{DeltaText: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInputBuf.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentToolCall != nil {
					var args map[string]interface{}
					if err := json.Unmarshal([]byte(toolInputBuf.String()), &args); err != nil {
						args = map[string]interface{}{}
					}
					currentToolCall.Arguments = args
					result.ToolCalls = append(result.ToolCalls, *currentToolCall)
					deltaCh <- service.StreamChunk{DeltaToolCall: currentToolCall}
					currentToolCall = nil
					toolInputBuf.Reset()
				}

			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					result.TokensUsed = int(aws.ToInt32(v.Value.Usage.InputTokens) + aws.ToInt32(v.Value.Usage.OutputTokens))
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				result.Content = textBuf.String()
				deltaCh <- service.StreamChunk{FinishReason: "stop"}
				return result, nil
			}
		}
	}
}

// convertMessages maps the flattened service.LLMMessage history into
// Bedrock's types.Message sequence, extracting the system prompt separately
// since Converse takes it out-of-band.
func (p *Provider) convertMessages(messages []service.LLMMessage) ([]types.Message, string) {
	result := make([]types.Message, 0, len(messages))
	var system string

	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.TextContent()
			continue
		}

		var content []types.ContentBlock
		if text := msg.TextContent(); text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: text})
		}
		for _, part := range msg.Parts {
			if part.Type != "image" || len(part.Data) == 0 {
				continue
			}
			format, ok := imageFormat(part.MimeType)
			if !ok {
				continue
			}
			content = append(content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{Format: format, Source: &types.ImageSourceMemberBytes{Value: part.Data}},
			})
		}

		switch msg.Role {
		case "tool":
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				},
			})
		case "assistant":
			for _, tc := range msg.ToolCalls {
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(tc.Name),
						Input:     document.NewLazyDocument(tc.Arguments),
					},
				})
			}
		}

		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}

	return result, system
}

// convertTools reshapes domain tool definitions into Bedrock's
// ToolConfiguration, mirroring the OpenAI-function-shape -> Bedrock-input-
// schema conversion spec rule 7 describes for other transports.
func (p *Provider) convertTools(defs []domaintool.Definition) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(d.Parameters),
				},
			},
		})
	}
	if len(tools) == 0 {
		return nil
	}
	return &types.ToolConfiguration{Tools: tools}
}

func imageFormat(mimeType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

// unavailableProvider is returned when AWS config loading fails at
// construction time (e.g. no credentials configured); it reports itself as
// unavailable rather than panicking the factory registry.
type unavailableProvider struct {
	name string
	err  error
}

var _ llm.Provider = (*unavailableProvider)(nil)

func (u *unavailableProvider) Name() string                         { return u.name }
func (u *unavailableProvider) Models() []string                     { return nil }
func (u *unavailableProvider) SupportsModel(string) bool            { return false }
func (u *unavailableProvider) IsAvailable(ctx context.Context) bool  { return false }
func (u *unavailableProvider) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	return nil, fmt.Errorf("bedrock: provider unavailable: %w", u.err)
}
func (u *unavailableProvider) GenerateStream(ctx context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	return nil, fmt.Errorf("bedrock: provider unavailable: %w", u.err)
}
