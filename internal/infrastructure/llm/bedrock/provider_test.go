package bedrock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service"
	domaintool "github.com/codex-go/codex/internal/domain/tool"
)

func TestSplitAPIKey(t *testing.T) {
	cases := []struct {
		in      string
		wantKey string
		wantSec string
		wantOK  bool
	}{
		{"", "", "", false},
		{"AKIAEXAMPLE:secretvalue", "AKIAEXAMPLE", "secretvalue", true},
		{":novalidaccesskey", "", "", false},
		{"noseparator", "", "", false},
	}
	for _, c := range cases {
		key, sec, ok := splitAPIKey(c.in)
		if ok != c.wantOK || key != c.wantKey || sec != c.wantSec {
			t.Errorf("splitAPIKey(%q) = (%q, %q, %v), want (%q, %q, %v)", c.in, key, sec, ok, c.wantKey, c.wantSec, c.wantOK)
		}
	}
}

func TestImageFormat(t *testing.T) {
	if f, ok := imageFormat("image/png"); !ok || f != types.ImageFormatPng {
		t.Errorf("expected png format, got %v, %v", f, ok)
	}
	if f, ok := imageFormat("image/jpeg"); !ok || f != types.ImageFormatJpeg {
		t.Errorf("expected jpeg format, got %v, %v", f, ok)
	}
	if _, ok := imageFormat("image/bmp"); ok {
		t.Error("expected unsupported format to report ok=false")
	}
}

func TestConvertMessages_ExtractsSystemPrompt(t *testing.T) {
	p := &Provider{}
	messages := []service.LLMMessage{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hello"},
	}
	converted, system := p.convertMessages(messages)
	if system != "be concise" {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(converted) != 1 {
		t.Fatalf("expected 1 converted message, got %d", len(converted))
	}
	if converted[0].Role != types.ConversationRoleUser {
		t.Errorf("expected user role, got %v", converted[0].Role)
	}
}

func TestConvertMessages_ToolResultAndToolUse(t *testing.T) {
	p := &Provider{}
	messages := []service.LLMMessage{
		{Role: "assistant", ToolCalls: []entity.ToolCallInfo{{ID: "call-1", Name: "read_file", Arguments: map[string]interface{}{"path": "a.txt"}}}},
		{Role: "tool", ToolCallID: "call-1", Content: "file contents"},
	}
	converted, _ := p.convertMessages(messages)
	if len(converted) != 2 {
		t.Fatalf("expected 2 converted messages, got %d", len(converted))
	}
	if converted[0].Role != types.ConversationRoleAssistant {
		t.Errorf("expected assistant role for tool_use message, got %v", converted[0].Role)
	}
	if converted[1].Role != types.ConversationRoleUser {
		t.Errorf("expected user role for tool_result message, got %v", converted[1].Role)
	}
}

func TestConvertTools_EmptyReturnsNil(t *testing.T) {
	p := &Provider{}
	if cfg := p.convertTools(nil); cfg != nil {
		t.Errorf("expected nil ToolConfiguration for no tools, got %+v", cfg)
	}
}

func TestConvertTools_BuildsToolSpec(t *testing.T) {
	p := &Provider{}
	defs := []domaintool.Definition{
		{Name: "shell", Description: "run a command", Parameters: map[string]interface{}{"type": "object"}},
	}
	cfg := p.convertTools(defs)
	if cfg == nil || len(cfg.Tools) != 1 {
		t.Fatalf("expected 1 tool spec, got %+v", cfg)
	}
	spec, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("expected *types.ToolMemberToolSpec, got %T", cfg.Tools[0])
	}
	if spec.Value.Name == nil || *spec.Value.Name != "shell" {
		t.Errorf("expected tool name shell, got %+v", spec.Value.Name)
	}
}

func TestSupportsModel(t *testing.T) {
	p := &Provider{models: []string{"anthropic.claude-3-sonnet-20240229-v1:0"}}
	if !p.SupportsModel("anthropic.claude-3-sonnet-20240229-v1:0") {
		t.Error("expected listed model to be supported")
	}
	if p.SupportsModel("unknown-model") {
		t.Error("expected unlisted model to be unsupported")
	}

	unrestricted := &Provider{}
	if !unrestricted.SupportsModel("anything") {
		t.Error("expected provider with no model list to support any model")
	}
}
