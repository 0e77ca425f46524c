package rollout

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
)

func TestLayoutPath(t *testing.T) {
	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	flat := layoutPath("/root", LayoutFlat, "abc123", ts)
	want := filepath.Join("/root", "sessions", "abc123.jsonl")
	if flat != want {
		t.Errorf("flat layout: got %q, want %q", flat, want)
	}

	nested := layoutPath("/root", LayoutNestedByDate, "abc123", ts)
	wantNested := filepath.Join("/root", "sessions", "2026", "03", "05", "abc123.jsonl")
	if nested != wantNested {
		t.Errorf("nested layout: got %q, want %q", nested, wantNested)
	}
}

func TestWriter_AppendFlushProducesDurableFile(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	w, err := NewWriter(root, LayoutFlat, "sess1", ts)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	cfgLine, err := NewSessionConfiguredLine(ts, SessionConfigured{SessionID: "sess1", OriginatorEvent: "cli", Cwd: "/work"})
	if err != nil {
		t.Fatalf("NewSessionConfiguredLine: %v", err)
	}
	if err := w.Append(cfgLine); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msg, err := entity.NewMessageItem(entity.RoleUser, []entity.ContentPart{{Type: "input_text", Text: "hello"}})
	if err != nil {
		t.Fatalf("NewMessageItem: %v", err)
	}
	msgLine, err := NewResponseItemLine(ts, msg)
	if err != nil {
		t.Fatalf("NewResponseItemLine: %v", err)
	}
	if err := w.Append(msgLine); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := os.Stat(w.Path()); err == nil {
		t.Fatalf("final file should not exist before Flush")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(w.Path() + ".tmp"); err == nil {
		t.Errorf("tmp file should be gone after Close")
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("open final file: %v", err)
	}
	defer f.Close()

	var lines []RolloutLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line RolloutLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Type != LineSessionConfigured {
		t.Errorf("line 0: expected session_configured, got %s", lines[0].Type)
	}
	if lines[1].Type != LineResponseItem {
		t.Errorf("line 1: expected response_item, got %s", lines[1].Type)
	}

	decoded, err := DecodeResponseItem(lines[1].Payload)
	if err != nil {
		t.Fatalf("DecodeResponseItem: %v", err)
	}
	decodedMsg, ok := decoded.(*entity.MessageItem)
	if !ok {
		t.Fatalf("expected *entity.MessageItem, got %T", decoded)
	}
	if decodedMsg.Text() != "hello" {
		t.Errorf("expected text %q, got %q", "hello", decodedMsg.Text())
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, LayoutFlat, "sess2", time.Now().UTC())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	line, _ := NewSessionConfiguredLine(time.Now().UTC(), SessionConfigured{SessionID: "sess2"})
	if err := w.Append(line); err == nil {
		t.Error("expected error appending to a closed writer")
	}
}

func TestEncodeDecodeResponseItem_AllVariants(t *testing.T) {
	msg, _ := entity.NewMessageItem(entity.RoleAssistant, []entity.ContentPart{{Type: "output_text", Text: "hi"}})

	items := []entity.ResponseItem{
		msg,
		&entity.ReasoningItem{Summary: []entity.ReasoningSummary{{Text: "thinking"}}, EncryptedContent: "opaque"},
		&entity.FunctionCallItem{CallID: "call1", Name: "shell", Arguments: `{"cmd":"ls"}`},
		&entity.FunctionCallOutputItem{CallID: "call1", Content: "out", Success: true},
		&entity.LocalShellCallItem{CallID: "call2", Action: entity.LocalShellAction{Command: []string{"ls", "-la"}, WorkingDirectory: "/tmp"}},
		&entity.WebSearchCallItem{CallID: "call3", Query: "golang gorm"},
		&entity.CustomToolCallItem{CallID: "call4", Name: "apply_patch", Input: "*** Begin Patch"},
		&entity.CustomToolCallOutputItem{CallID: "call4", Output: "applied"},
		&entity.CompactedItem{Message: "summary of earlier turns"},
	}

	for _, item := range items {
		raw, err := EncodeResponseItem(item)
		if err != nil {
			t.Fatalf("EncodeResponseItem(%T): %v", item, err)
		}
		decoded, err := DecodeResponseItem(raw)
		if err != nil {
			t.Fatalf("DecodeResponseItem(%T): %v", item, err)
		}
		if decoded.Kind() != item.Kind() {
			t.Errorf("%T: kind mismatch: got %s, want %s", item, decoded.Kind(), item.Kind())
		}
	}
}

func TestEncodeDecodeTurnContext(t *testing.T) {
	tc := entity.NewTurnContext(entity.TurnContextConfig{
		Cwd:              "/work",
		SandboxMode:      entity.SandboxWorkspaceWrite,
		ApprovalPolicy:   entity.ApprovalOnRequest,
		Model:            "gpt-5",
		CompactThreshold: 4096,
	})
	raw, err := EncodeTurnContext(tc)
	if err != nil {
		t.Fatalf("EncodeTurnContext: %v", err)
	}
	decoded, err := DecodeTurnContext(raw)
	if err != nil {
		t.Fatalf("DecodeTurnContext: %v", err)
	}
	if decoded.Cwd() != tc.Cwd() || decoded.Model() != tc.Model() || decoded.CompactThreshold() != tc.CompactThreshold() {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}
