package render

import "strings"

// HoldbackState tracks whether raw_source currently contains a pipe table
// that hasn't finished arriving yet (spec 4.H "Table holdback").
type HoldbackState int

const (
	// HoldbackNone means no table is in progress; nothing needs holding back.
	HoldbackNone HoldbackState = iota
	// HoldbackPendingHeader means the last non-blank line looks like a table
	// header but no delimiter row has arrived to confirm it yet.
	HoldbackPendingHeader
	// HoldbackConfirmed means a header immediately followed by a delimiter
	// row was found — this is a real GFM pipe table.
	HoldbackConfirmed
)

// scanHoldback walks source line by line, tracking fenced-code context, and
// reports the current table-holdback state. Fence info strings of "md" or
// "markdown" count as normal prose (their contents are still scanned for
// tables); any other fence info masks its contents from table detection.
func scanHoldback(source string) HoldbackState {
	lines := strings.Split(source, "\n")

	inFence := false
	fenceMasked := false

	confirmed := false
	var lastNonBlank string
	havePrev := false
	prevWasHeaderCandidate := false

	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)

		if isFenceMarker(trimmed) {
			if !inFence {
				inFence = true
				fenceMasked = !isProseFenceInfo(trimmed)
			} else {
				inFence = false
				fenceMasked = false
			}
			havePrev = false
			continue
		}

		if inFence && fenceMasked {
			havePrev = false
			continue
		}

		if trimmed == "" {
			havePrev = false
			continue
		}

		if havePrev && prevWasHeaderCandidate && isDelimiterRow(trimmed) {
			confirmed = true
		}

		lastNonBlank = trimmed
		prevWasHeaderCandidate = isHeaderCandidate(trimmed)
		havePrev = true
	}

	if confirmed {
		return HoldbackConfirmed
	}
	if lastNonBlank != "" && isHeaderCandidate(lastNonBlank) {
		return HoldbackPendingHeader
	}
	return HoldbackNone
}

func isFenceMarker(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

func isProseFenceInfo(trimmed string) bool {
	info := strings.TrimSpace(strings.TrimLeft(trimmed, "`~"))
	info = strings.ToLower(info)
	return info == "md" || info == "markdown" || info == ""
}

// stripBlockquote removes a leading "> " / ">" blockquote prefix chain.
func stripBlockquote(line string) string {
	for {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ">") {
			return trimmed
		}
		line = strings.TrimPrefix(trimmed, ">")
	}
}

// pipeCells splits a candidate row into its cell contents, dropping a single
// leading/trailing empty cell produced by a leading/trailing "|".
func pipeCells(line string) ([]string, bool) {
	body := stripBlockquote(line)
	if !strings.Contains(body, "|") {
		return nil, false
	}
	cells := strings.Split(body, "|")
	if len(cells) > 0 && strings.TrimSpace(cells[0]) == "" {
		cells = cells[1:]
	}
	if len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	if len(cells) == 0 {
		return nil, false
	}
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells, true
}

func isHeaderCandidate(line string) bool {
	cells, ok := pipeCells(line)
	if !ok {
		return false
	}
	for _, c := range cells {
		if c == "" {
			return false
		}
	}
	return true
}

func isDelimiterRow(line string) bool {
	cells, ok := pipeCells(line)
	if !ok {
		return false
	}
	for _, c := range cells {
		if !isDelimiterCell(c) {
			return false
		}
	}
	return true
}

func isDelimiterCell(cell string) bool {
	if cell == "" {
		return false
	}
	s := cell
	s = strings.TrimPrefix(s, ":")
	s = strings.TrimSuffix(s, ":")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '-' {
			return false
		}
	}
	return true
}
