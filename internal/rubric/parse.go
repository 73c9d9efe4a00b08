package rubric

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotATable is returned when the input holds fewer than two table rows.
var ErrNotATable = errors.New("input is not a markdown table")

var separatorCell = regexp.MustCompile(`^\s*:?-+:?\s*$`)

// Parse extracts the first pipe-delimited table found in text. Lines without a
// pipe are ignored, as are separator rows such as "|---|:--:|".
func Parse(text string) (*RecordSet, error) {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if strings.Contains(ln, "|") {
			lines = append(lines, ln)
		}
	}
	if len(lines) < 2 {
		return nil, ErrNotATable
	}

	var rows [][]string
	for _, ln := range lines {
		if isSeparator(ln) {
			continue
		}
		rows = append(rows, splitRow(ln))
	}
	if len(rows) < 2 {
		return nil, ErrNotATable
	}

	return NewRecordSet(rows[0], rows[1:]), nil
}

func isSeparator(line string) bool {
	for _, seg := range strings.Split(strings.Trim(line, "|"), "|") {
		if !separatorCell.MatchString(seg) {
			return false
		}
	}
	return true
}

func splitRow(line string) []string {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}
