package render

import (
	"strings"
	"testing"
)

func assertInvariant(t *testing.T, sr *StreamRenderer) {
	t.Helper()
	if sr.EmittedStableLen() > sr.EnqueuedStableLen() {
		t.Fatalf("emitted_stable_len (%d) > enqueued_stable_len (%d)", sr.EmittedStableLen(), sr.EnqueuedStableLen())
	}
	if sr.EnqueuedStableLen() > sr.RenderedLen() {
		t.Fatalf("enqueued_stable_len (%d) > rendered.len() (%d)", sr.EnqueuedStableLen(), sr.RenderedLen())
	}
}

func TestPushDeltaCommitsOnNewlineOnly(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("hello worl")
	if sr.RawSource() != "" {
		t.Fatalf("expected no commit before a newline, got %q", sr.RawSource())
	}
	sr.PushDelta("d\n")
	if sr.RawSource() != "hello world\n" {
		t.Fatalf("expected commit on newline, got %q", sr.RawSource())
	}
	assertInvariant(t, sr)
}

func TestPlainMarkdownHasNoHoldback(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("line one\nline two\nline three\n")
	assertInvariant(t, sr)
	if sr.EnqueuedStableLen() != sr.RenderedLen() {
		t.Fatalf("expected plain prose to have zero tail budget: enqueued=%d rendered=%d",
			sr.EnqueuedStableLen(), sr.RenderedLen())
	}
}

func TestPendingTableHoldsBackEntireBuffer(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("intro paragraph\n\n")
	assertInvariant(t, sr)
	drainedBeforeTable := len(sr.DrainAll())
	if drainedBeforeTable == 0 {
		t.Fatalf("expected the intro paragraph to be drainable before any table starts")
	}

	sr.PushDelta("| Name | Age |\n")
	assertInvariant(t, sr)
	if sr.EnqueuedStableLen() != sr.EmittedStableLen() {
		t.Fatalf("expected a pending table header to hold back the rest of the buffer entirely")
	}

	sr.PushDelta("| --- | --- |\n")
	assertInvariant(t, sr)
	if sr.EnqueuedStableLen() != sr.EmittedStableLen() {
		t.Fatalf("expected a confirmed table to still hold back the whole buffer while streaming")
	}
}

func TestConfirmedTableStaysHeldBackUntilFinalize(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("| Name | Age |\n| --- | --- |\n| Alice | 30 |\n")
	sr.PushDelta("\nAfter the table.\n")
	assertInvariant(t, sr)
	if sr.EnqueuedStableLen() != sr.EmittedStableLen() {
		t.Fatalf("expected a table seen anywhere in source to hold back the whole buffer while streaming")
	}

	remaining := sr.Finalize()
	if len(remaining) == 0 {
		t.Fatalf("expected Finalize to flush the held-back table content")
	}
	assertInvariant(t, sr)
	if sr.EmittedStableLen() != sr.RenderedLen() {
		t.Fatalf("expected Finalize to emit everything: emitted=%d rendered=%d", sr.EmittedStableLen(), sr.RenderedLen())
	}
}

func TestDrainNeverRetractsEmittedLines(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("paragraph one\n\nparagraph two\n\n")
	first := sr.DrainAll()
	if len(first) == 0 {
		t.Fatalf("expected some lines to drain")
	}
	emittedAfterFirst := sr.EmittedStableLen()

	// A pending table at the tail must not touch what was already emitted.
	sr.PushDelta("| a | b |\n")
	assertInvariant(t, sr)
	if sr.EmittedStableLen() != emittedAfterFirst {
		t.Fatalf("emitted_stable_len regressed from %d to %d", emittedAfterFirst, sr.EmittedStableLen())
	}
}

func TestSetWidthIsIdempotentOnInvariant(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("first line\nsecond line\nthird line\nfourth line\n")
	sr.DrainN(2)
	assertInvariant(t, sr)

	sr.SetWidth(40)
	assertInvariant(t, sr)

	sr.SetWidth(120)
	assertInvariant(t, sr)

	// Resizing never touches the committed raw source, only presentation.
	if !strings.Contains(sr.RawSource(), "fourth line") {
		t.Fatalf("expected raw source to survive resize, got %q", sr.RawSource())
	}
}

func TestSetWidthSameWidthIsNoop(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("one\ntwo\nthree\n")
	sr.DrainAll()
	before := sr.EmittedStableLen()
	sr.SetWidth(80)
	if sr.EmittedStableLen() != before {
		t.Fatalf("expected same-width SetWidth to be a no-op, emitted changed %d -> %d", before, sr.EmittedStableLen())
	}
}

func TestActiveTailReflectsUndrainedContent(t *testing.T) {
	sr := NewStreamRenderer(80)
	sr.PushDelta("committed\n")
	sr.DrainAll()
	sr.PushDelta("more text without newline yet")
	// Partial line without a trailing newline is not committed, so the
	// active tail should still just reflect the committed, drained buffer.
	if sr.ActiveTail() != "" {
		t.Fatalf("expected no active tail before the partial line commits, got %q", sr.ActiveTail())
	}
}
