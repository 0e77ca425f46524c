// Package render implements the two-region (stable + mutable tail) markdown
// commit engine (spec 4.H): a streaming assistant message is re-rendered on
// every committed line, with table-aware holdback so scrollback lines, once
// emitted, never need a retroactive edit.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// StreamRenderer holds the streaming state for one in-flight assistant
// message: the raw markdown accumulator, the full rendered line buffer, and
// the stable/tail bookkeeping described in spec 4.H.
type StreamRenderer struct {
	width int

	rawSource string // committed, newline-terminated markdown source
	pending   string // uncommitted partial line (no trailing newline yet)

	renderedLines []string // full re-render of rawSource at the current width

	enqueuedStableLen int // lines already pushed onto the animation queue
	emittedStableLen  int // lines already drawn to scrollback

	queue []string // animation queue: enqueued but not yet emitted lines

	termRenderer *glamour.TermRenderer
}

// NewStreamRenderer creates a stream renderer at the given terminal width.
func NewStreamRenderer(width int) *StreamRenderer {
	if width <= 0 {
		width = 80
	}
	sr := &StreamRenderer{width: width}
	sr.termRenderer = newTermRenderer(width)
	return sr
}

func newTermRenderer(width int) *glamour.TermRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return r
}

// renderAt renders source at the given width and splits it into lines. A
// nil termRenderer (construction failed, e.g. no terminal) degrades to
// rendering the raw source unstyled rather than losing content.
func (sr *StreamRenderer) renderAt(source string, width int) []string {
	tr := sr.termRenderer
	if width != sr.width || tr == nil {
		tr = newTermRenderer(width)
	}
	if tr == nil {
		return splitLines(source)
	}
	out, err := tr.Render(source)
	if err != nil {
		return splitLines(source)
	}
	return splitLines(strings.TrimRight(out, "\n"))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// tailBudgetLines returns how many of the currently rendered lines must be
// withheld in the mutable tail, per the table-holdback rule (spec 4.H).
func (sr *StreamRenderer) tailBudgetLines() int {
	switch scanHoldback(sr.rawSource) {
	case HoldbackConfirmed, HoldbackPendingHeader:
		return len(sr.renderedLines)
	default:
		return 0
	}
}

// PushDelta appends an incremental chunk of raw markdown. Complete lines
// (everything up to the last trailing newline) are committed to rawSource,
// the full buffer is re-rendered, and newly-stable lines are enqueued.
func (sr *StreamRenderer) PushDelta(delta string) {
	sr.pending += delta

	idx := strings.LastIndexByte(sr.pending, '\n')
	if idx < 0 {
		return
	}
	commit := sr.pending[:idx+1]
	sr.pending = sr.pending[idx+1:]
	sr.rawSource += commit

	sr.recompute()
}

// recompute re-renders rawSource at the current width and updates the
// enqueued-stable boundary and animation queue accordingly.
func (sr *StreamRenderer) recompute() {
	sr.renderedLines = sr.renderAt(sr.rawSource, sr.width)

	tailBudget := sr.tailBudgetLines()
	stableLen := len(sr.renderedLines) - tailBudget
	if stableLen < 0 {
		stableLen = 0
	}

	switch {
	case stableLen > sr.enqueuedStableLen:
		newly := sr.renderedLines[sr.enqueuedStableLen:stableLen]
		sr.queue = append(sr.queue, newly...)
		sr.enqueuedStableLen = stableLen
	case stableLen < sr.enqueuedStableLen:
		// A structural element (e.g. a pipe table) retroactively claimed
		// lines that were already enqueued but not yet drawn — pull them
		// back out of the queue. Lines already emitted to scrollback are
		// never touched (spec: "renderer frames never display a line that
		// is later retracted").
		if stableLen < sr.emittedStableLen {
			stableLen = sr.emittedStableLen
		}
		keep := stableLen - sr.emittedStableLen
		if keep < 0 {
			keep = 0
		}
		if keep < len(sr.queue) {
			sr.queue = sr.queue[:keep]
		}
		sr.enqueuedStableLen = stableLen
	}
}

// DrainAll pops every queued line, committing it to scrollback.
func (sr *StreamRenderer) DrainAll() []string {
	return sr.DrainN(len(sr.queue))
}

// DrainN pops up to n queued lines, committing them to scrollback.
func (sr *StreamRenderer) DrainN(n int) []string {
	if n > len(sr.queue) {
		n = len(sr.queue)
	}
	if n <= 0 {
		return nil
	}
	out := sr.queue[:n]
	sr.queue = sr.queue[n:]
	sr.emittedStableLen += n
	return out
}

// ActiveTail returns the current mutable-tail content: rendered lines from
// emittedStableLen+queued-but-undrained through the end of the buffer. This
// is what the caller should show in the "active cell" rather than scrollback.
func (sr *StreamRenderer) ActiveTail() string {
	start := sr.emittedStableLen + len(sr.queue)
	if start >= len(sr.renderedLines) {
		return ""
	}
	return strings.Join(sr.renderedLines[start:], "\n")
}

// SetWidth performs the idempotent-resize algorithm (spec 4.H): it
// recomputes emittedStableLen for the new width from the original source
// (never re-emitting already-written scrollback from scratch), then
// re-renders the full buffer and re-enqueues whatever remains.
func (sr *StreamRenderer) SetWidth(newWidth int) {
	if newWidth <= 0 {
		newWidth = 80
	}
	if newWidth == sr.width {
		return
	}
	oldWidth := sr.width

	prefix := sr.largestPrefixWithinLines(sr.rawSource, oldWidth, sr.emittedStableLen)

	sr.width = newWidth
	sr.termRenderer = newTermRenderer(newWidth)

	prefixRendered := sr.renderAt(prefix, newWidth)
	sr.emittedStableLen = len(prefixRendered)

	sr.renderedLines = sr.renderAt(sr.rawSource, newWidth)
	tailBudget := sr.tailBudgetLines()
	stableLen := len(sr.renderedLines) - tailBudget
	if stableLen < sr.emittedStableLen {
		stableLen = sr.emittedStableLen
	}

	sr.queue = append([]string(nil), sr.renderedLines[sr.emittedStableLen:stableLen]...)
	sr.enqueuedStableLen = stableLen
}

// largestPrefixWithinLines finds the largest newline-terminated prefix of
// source whose rendering at width yields at most maxLines rendered lines.
func (sr *StreamRenderer) largestPrefixWithinLines(source string, width int, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.SplitAfter(source, "\n")
	best := ""
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(line)
		candidate := b.String()
		rendered := sr.renderAt(candidate, width)
		if len(rendered) <= maxLines {
			best = candidate
		}
	}
	return best
}

// Finalize commits any trailing partial line (even without a terminating
// newline) and returns every remaining rendered line not yet emitted,
// ignoring table holdback — called once the stream itself has ended, since
// there is no more incoming content that could reshape a pending table.
func (sr *StreamRenderer) Finalize() []string {
	if sr.pending != "" {
		sr.rawSource += sr.pending
		sr.pending = ""
	}
	sr.renderedLines = sr.renderAt(sr.rawSource, sr.width)
	if sr.emittedStableLen >= len(sr.renderedLines) {
		sr.enqueuedStableLen = len(sr.renderedLines)
		sr.queue = nil
		return nil
	}
	remaining := append([]string(nil), sr.renderedLines[sr.emittedStableLen:]...)
	sr.enqueuedStableLen = len(sr.renderedLines)
	sr.emittedStableLen = len(sr.renderedLines)
	sr.queue = nil
	return remaining
}

// EnqueuedStableLen returns the count of rendered lines committed to the
// animation queue so far (spec invariant bookkeeping, exposed for tests).
func (sr *StreamRenderer) EnqueuedStableLen() int { return sr.enqueuedStableLen }

// EmittedStableLen returns the count of rendered lines already drawn to
// scrollback.
func (sr *StreamRenderer) EmittedStableLen() int { return sr.emittedStableLen }

// RenderedLen returns the total number of lines in the current full render.
func (sr *StreamRenderer) RenderedLen() int { return len(sr.renderedLines) }

// RawSource returns the committed raw markdown source (excludes any
// uncommitted partial line still in the pending collector).
func (sr *StreamRenderer) RawSource() string { return sr.rawSource }
