package render

import "testing"

func TestScanHoldbackNone(t *testing.T) {
	state := scanHoldback("Just some plain prose.\nNothing tabular here.\n")
	if state != HoldbackNone {
		t.Fatalf("expected HoldbackNone, got %v", state)
	}
}

func TestScanHoldbackPendingHeader(t *testing.T) {
	state := scanHoldback("some text\n\n| a | b |\n")
	if state != HoldbackPendingHeader {
		t.Fatalf("expected HoldbackPendingHeader, got %v", state)
	}
}

func TestScanHoldbackConfirmed(t *testing.T) {
	state := scanHoldback("| a | b |\n| - | - |\n| 1 | 2 |\n")
	if state != HoldbackConfirmed {
		t.Fatalf("expected HoldbackConfirmed, got %v", state)
	}
}

func TestScanHoldbackConfirmedWithAlignment(t *testing.T) {
	state := scanHoldback("| Name | Age |\n|:---|---:|\n| Alice | 30 |\n")
	if state != HoldbackConfirmed {
		t.Fatalf("expected HoldbackConfirmed, got %v", state)
	}
}

func TestScanHoldbackMaskedInFence(t *testing.T) {
	state := scanHoldback("```\n| a | b |\n| - | - |\n```\nplain text\n")
	if state != HoldbackNone {
		t.Fatalf("expected fenced table to be masked (HoldbackNone), got %v", state)
	}
}

func TestScanHoldbackMarkdownFenceIsProse(t *testing.T) {
	state := scanHoldback("```md\n| a | b |\n| - | - |\n```\n")
	if state != HoldbackConfirmed {
		t.Fatalf("expected md-tagged fence to be scanned as prose (HoldbackConfirmed), got %v", state)
	}
}

func TestScanHoldbackBlockquoteTable(t *testing.T) {
	state := scanHoldback("> | a | b |\n> | - | - |\n")
	if state != HoldbackConfirmed {
		t.Fatalf("expected blockquoted table to confirm, got %v", state)
	}
}
