package rollout

import (
	"encoding/json"
	"fmt"

	"github.com/codex-go/codex/internal/domain/entity"
)

// turnContextEnvelope mirrors entity.TurnContextConfig field-for-field; used
// both to encode a TurnContext (via its exported accessors) and to decode
// one back through entity.NewTurnContext.
type turnContextEnvelope struct {
	Kind             LineKind               `json:"kind"`
	Cwd              string                 `json:"cwd"`
	SandboxMode      entity.SandboxMode     `json:"sandbox_mode"`
	ApprovalPolicy   entity.ApprovalPolicy  `json:"approval_policy"`
	Model            string                 `json:"model"`
	ReasoningEffort  string                 `json:"reasoning_effort"`
	SummaryMode      string                 `json:"summary_mode"`
	AutoCompactMode  entity.AutoCompactMode `json:"auto_compact_mode"`
	CompactThreshold int                    `json:"compact_threshold"`
}

// EncodeTurnContext marshals a TurnContext's public fields. CreatedAt is
// deliberately omitted: the enclosing RolloutLine.Timestamp already records
// when this snapshot was written.
func EncodeTurnContext(tc *entity.TurnContext) (json.RawMessage, error) {
	env := turnContextEnvelope{
		Kind:             LineTurnContext,
		Cwd:              tc.Cwd(),
		SandboxMode:      tc.SandboxMode(),
		ApprovalPolicy:   tc.ApprovalPolicy(),
		Model:            tc.Model(),
		ReasoningEffort:  tc.ReasoningEffort(),
		SummaryMode:      tc.SummaryMode(),
		AutoCompactMode:  tc.AutoCompactMode(),
		CompactThreshold: tc.CompactThreshold(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("rollout: marshal turn_context: %w", err)
	}
	return raw, nil
}

// DecodeTurnContext rebuilds a TurnContext from an EncodeTurnContext payload.
func DecodeTurnContext(raw json.RawMessage) (*entity.TurnContext, error) {
	var env turnContextEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("rollout: unmarshal turn_context: %w", err)
	}
	return entity.NewTurnContext(entity.TurnContextConfig{
		Cwd:              env.Cwd,
		SandboxMode:      env.SandboxMode,
		ApprovalPolicy:   env.ApprovalPolicy,
		Model:            env.Model,
		ReasoningEffort:  env.ReasoningEffort,
		SummaryMode:      env.SummaryMode,
		AutoCompactMode:  env.AutoCompactMode,
		CompactThreshold: env.CompactThreshold,
	}), nil
}

// responseItemEnvelope wraps exactly one of the nine ResponseItem variants,
// discriminated by Kind. MessageItem's fields are unexported (role/content),
// so it is the one variant that cannot ride encoding/json's default struct
// tags directly — Message/MessageContent below stand in for it via the
// type's Role()/Content() accessors.
type responseItemEnvelope struct {
	Kind entity.ResponseItemKind `json:"kind"`

	// message
	Role           entity.Role           `json:"role,omitempty"`
	MessageContent []entity.ContentPart  `json:"message_content,omitempty"`

	// reasoning
	Summary          []entity.ReasoningSummary `json:"summary,omitempty"`
	ReasoningContent []string                  `json:"reasoning_content,omitempty"`
	EncryptedContent string                    `json:"encrypted_content,omitempty"`

	// function_call / custom_tool_call share CallID/Name; function_call's
	// argument payload and custom_tool_call's input are both raw strings
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Content string               `json:"content,omitempty"`
	Success bool                 `json:"success,omitempty"`
	Images  []entity.ContentPart `json:"images,omitempty"`

	// local_shell_call
	Action entity.LocalShellAction `json:"action,omitempty"`

	// web_search_call
	Query string `json:"query,omitempty"`

	// custom_tool_call
	Input string `json:"input,omitempty"`

	// custom_tool_call_output
	Output string `json:"output,omitempty"`

	// compacted
	Message string `json:"message,omitempty"`
}

// EncodeResponseItem marshals any of the nine entity.ResponseItem variants.
func EncodeResponseItem(item entity.ResponseItem) (json.RawMessage, error) {
	var env responseItemEnvelope
	env.Kind = item.Kind()

	switch v := item.(type) {
	case *entity.MessageItem:
		env.Role = v.Role()
		env.MessageContent = v.Content()
	case *entity.ReasoningItem:
		env.Summary = v.Summary
		env.ReasoningContent = v.Content
		env.EncryptedContent = v.EncryptedContent
	case *entity.FunctionCallItem:
		env.CallID = v.CallID
		env.Name = v.Name
		env.Arguments = v.Arguments
	case *entity.FunctionCallOutputItem:
		env.CallID = v.CallID
		env.Content = v.Content
		env.Success = v.Success
		env.Images = v.Images
	case *entity.LocalShellCallItem:
		env.CallID = v.CallID
		env.Action = v.Action
	case *entity.WebSearchCallItem:
		env.CallID = v.CallID
		env.Query = v.Query
	case *entity.CustomToolCallItem:
		env.CallID = v.CallID
		env.Name = v.Name
		env.Input = v.Input
	case *entity.CustomToolCallOutputItem:
		env.CallID = v.CallID
		env.Output = v.Output
	case *entity.CompactedItem:
		env.Message = v.Message
	default:
		return nil, fmt.Errorf("rollout: unknown ResponseItem type %T", item)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("rollout: marshal response_item: %w", err)
	}
	return raw, nil
}

// DecodeResponseItem rebuilds a concrete entity.ResponseItem from an
// EncodeResponseItem payload, dispatching on the envelope's Kind.
func DecodeResponseItem(raw json.RawMessage) (entity.ResponseItem, error) {
	var env responseItemEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("rollout: unmarshal response_item: %w", err)
	}

	switch env.Kind {
	case entity.KindMessage:
		return entity.NewMessageItem(env.Role, env.MessageContent)
	case entity.KindReasoning:
		return &entity.ReasoningItem{
			Summary:          env.Summary,
			Content:          env.ReasoningContent,
			EncryptedContent: env.EncryptedContent,
		}, nil
	case entity.KindFunctionCall:
		return &entity.FunctionCallItem{CallID: env.CallID, Name: env.Name, Arguments: env.Arguments}, nil
	case entity.KindFunctionCallOutput:
		return &entity.FunctionCallOutputItem{
			CallID: env.CallID, Content: env.Content, Success: env.Success, Images: env.Images,
		}, nil
	case entity.KindLocalShellCall:
		return &entity.LocalShellCallItem{CallID: env.CallID, Action: env.Action}, nil
	case entity.KindWebSearchCall:
		return &entity.WebSearchCallItem{CallID: env.CallID, Query: env.Query}, nil
	case entity.KindCustomToolCall:
		return &entity.CustomToolCallItem{CallID: env.CallID, Name: env.Name, Input: env.Input}, nil
	case entity.KindCustomToolCallOut:
		return &entity.CustomToolCallOutputItem{CallID: env.CallID, Output: env.Output}, nil
	case entity.KindCompacted:
		return &entity.CompactedItem{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("rollout: unknown response_item kind %q", env.Kind)
	}
}
