// Package rollout implements the append-only conversation journal described
// in spec 4.G: one JSONL file per session, appended to as the conversation
// progresses and atomically renamed into place on durable flush so a reader
// never observes a half-written file. Net-new — the teacher never persists a
// conversation transcript to disk (the Telegram adapter reloads history per
// call from its own chat store) — so the file-handling idiom here follows
// internal/infrastructure/config/mcp.go's read-or-create-then-append style
// rather than any direct teacher analog.
package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
)

// Layout selects the on-disk directory shape for rollout files (spec 4.G
// "two layouts (NestedByDate, Flat)").
type Layout string

const (
	LayoutNestedByDate Layout = "nested_by_date"
	LayoutFlat         Layout = "flat"
)

// LineKind is the tagged-union discriminant for one RolloutLine (spec 4.G
// "RolloutLine { timestamp, item: TurnContext | ResponseItem | Compacted |
// SessionConfigured | … }"). Compacted rides inside LineResponseItem as a
// CompactedItem (entity.KindCompacted) since the domain model already
// treats it as one ResponseItem variant among others.
type LineKind string

const (
	LineSessionConfigured LineKind = "session_configured"
	LineTurnContext       LineKind = "turn_context"
	LineResponseItem      LineKind = "response_item"
)

// RolloutLine is one line of the JSONL file (spec 6 "Rollout JSONL": "One
// JSON object per line; each object is {ts:"<RFC3339>", item:{…}}"). Type
// duplicates the discriminator already embedded in Item's own "kind" field
// so a reader can filter lines by kind without decoding every payload.
type RolloutLine struct {
	Timestamp time.Time       `json:"ts"`
	Type      LineKind        `json:"type"`
	Payload   json.RawMessage `json:"item"`
}

// SessionConfigured is the first line written to every rollout file,
// recording how the session began.
type SessionConfigured struct {
	Kind            LineKind `json:"kind"`
	SessionID       string   `json:"session_id"`
	OriginatorEvent string   `json:"originator_event"`
	Cwd             string   `json:"cwd"`
}

// NewSessionConfiguredLine builds the session-opening line.
func NewSessionConfiguredLine(ts time.Time, cfg SessionConfigured) (RolloutLine, error) {
	cfg.Kind = LineSessionConfigured
	raw, err := json.Marshal(cfg)
	if err != nil {
		return RolloutLine{}, fmt.Errorf("rollout: marshal session_configured: %w", err)
	}
	return RolloutLine{Timestamp: ts, Type: LineSessionConfigured, Payload: raw}, nil
}

// NewTurnContextLine records a TurnContext snapshot (the initial one, or one
// produced by a SubOverrideTurnContext amendment).
func NewTurnContextLine(ts time.Time, tc *entity.TurnContext) (RolloutLine, error) {
	raw, err := EncodeTurnContext(tc)
	if err != nil {
		return RolloutLine{}, err
	}
	return RolloutLine{Timestamp: ts, Type: LineTurnContext, Payload: raw}, nil
}

// NewResponseItemLine records one ResponseItem (message, tool call, output,
// reasoning block, or compaction marker).
func NewResponseItemLine(ts time.Time, item entity.ResponseItem) (RolloutLine, error) {
	raw, err := EncodeResponseItem(item)
	if err != nil {
		return RolloutLine{}, err
	}
	return RolloutLine{Timestamp: ts, Type: LineResponseItem, Payload: raw}, nil
}

// layoutPath computes the on-disk path for a session's rollout file, matching
// spec 6's "Rollout JSONL" external-interface path:
// `$CODEX_HOME/sessions/<yyyy>/<mm>/<dd>/<uuid>.jsonl` for the nested layout.
// LayoutFlat drops the date components, keeping every session directly under
// sessions/ — useful for CODEX_HOME trees small enough that date buckets
// only add directory-listing overhead.
func layoutPath(root string, layout Layout, sessionID string, createdAt time.Time) string {
	name := sessionID + ".jsonl"
	if layout == LayoutNestedByDate {
		return filepath.Join(root, "sessions",
			createdAt.Format("2006"), createdAt.Format("01"), createdAt.Format("02"), name)
	}
	return filepath.Join(root, "sessions", name)
}

// Writer appends RolloutLines to one session's JSONL file. Lines are buffered
// into a ".tmp" sibling as they arrive; Flush fsyncs and atomically renames
// that file into its final, durable location (spec 4.G "Atomic rename on
// durable flush") so concurrent readers (the resume/list path) only ever see
// a complete file, never a partial write.
type Writer struct {
	mu        sync.Mutex
	tmpPath   string
	finalPath string
	file      *os.File
	enc       *json.Encoder
	closed    bool
}

// NewWriter opens a new rollout file for sessionID under root, laid out per
// layout.
func NewWriter(root string, layout Layout, sessionID string, createdAt time.Time) (*Writer, error) {
	finalPath := layoutPath(root, layout, sessionID, createdAt)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: mkdir %s: %w", filepath.Dir(finalPath), err)
	}
	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", tmpPath, err)
	}
	return &Writer{tmpPath: tmpPath, finalPath: finalPath, file: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the file's final, durable path (valid even before the first Flush).
func (w *Writer) Path() string {
	return w.finalPath
}

// Append writes one line. It is not durable until the next Flush.
func (w *Writer) Append(line RolloutLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("rollout: writer for %s is closed", w.finalPath)
	}
	if err := w.enc.Encode(line); err != nil {
		return fmt.Errorf("rollout: append: %w", err)
	}
	return nil
}

// Flush fsyncs everything written so far and atomically renames the buffer
// file into its final path, then reopens in append mode so subsequent
// Appends keep writing to the now-visible file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("rollout: sync %s: %w", w.tmpPath, err)
	}
	if w.tmpPath != w.finalPath {
		if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
			return fmt.Errorf("rollout: rename %s -> %s: %w", w.tmpPath, w.finalPath, err)
		}
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("rollout: close after rename: %w", err)
		}
		f, err := os.OpenFile(w.finalPath, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("rollout: reopen %s: %w", w.finalPath, err)
		}
		w.file = f
		w.enc = json.NewEncoder(f)
		w.tmpPath = w.finalPath // later flushes rename the final path onto itself: a cheap POSIX no-op
	}
	return nil
}

// ReadLines reads back every RolloutLine from a session's JSONL file, in
// the order it was written (spec 4.G: resume replays the file this way).
// Only ever called against a finalPath — Writer never exposes its .tmp
// sibling, so a reader never observes a half-written file.
func ReadLines(path string) ([]RolloutLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []RolloutLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line RolloutLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("rollout: decode line in %s: %w", path, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return lines, nil
}

// ResponseItems decodes every LineResponseItem among lines, in order,
// dropping the session_configured/turn_context bookkeeping lines a reader
// doesn't need to replay the conversation itself.
func ResponseItems(lines []RolloutLine) ([]entity.ResponseItem, error) {
	items := make([]entity.ResponseItem, 0, len(lines))
	for _, line := range lines {
		if line.Type != LineResponseItem {
			continue
		}
		item, err := DecodeResponseItem(line.Payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Close flushes and closes the underlying file. The engine's shutdown
// (Submission::Shutdown) signals the rollout writer, which drains before
// exit, per spec 4.G.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flushLocked()
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
