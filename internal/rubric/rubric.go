// Package rubric turns the review table pasted back from a chat session into a
// record set and enforces the scoring rules on it.
package rubric

import (
	"strings"
)

// RecordSet is an ordered table of string cells sharing a single header.
// Every row has exactly len(Columns) cells.
type RecordSet struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Record maps a column name to its cell value.
type Record map[string]string

// NewRecordSet builds a record set from a header and body rows. Short rows are
// padded with empty cells and long rows are truncated to the header width.
func NewRecordSet(columns []string, rows [][]string) *RecordSet {
	rs := &RecordSet{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		rs.Rows = append(rs.Rows, fitRow(r, len(columns)))
	}
	return rs
}

func fitRow(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}

// Len returns the number of body rows.
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Clone returns a deep copy.
func (rs *RecordSet) Clone() *RecordSet {
	if rs == nil {
		return nil
	}
	return NewRecordSet(rs.Columns, rs.Rows)
}

// ColumnIndex returns the index of the first column whose name contains any of
// the keywords (case-insensitive), or -1.
func (rs *RecordSet) ColumnIndex(keywords ...string) int {
	if rs == nil {
		return -1
	}
	for i, name := range rs.Columns {
		if NameMatches(name, keywords...) {
			return i
		}
	}
	return -1
}

// NameMatches reports whether a column name contains any of the keywords,
// ignoring case.
func NameMatches(name string, keywords ...string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Record returns row i keyed by column name. When the header repeats a name,
// the first column with that name wins.
func (rs *RecordSet) Record(i int) Record {
	rec := make(Record, len(rs.Columns))
	for c, name := range rs.Columns {
		if _, seen := rec[name]; seen {
			continue
		}
		rec[name] = rs.Rows[i][c]
	}
	return rec
}

// Records returns all rows keyed by column name.
func (rs *RecordSet) Records() []Record {
	out := make([]Record, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		out = append(out, rs.Record(i))
	}
	return out
}

// Markdown renders the record set as a pipe table. Pipes inside cells are
// escaped and line breaks are folded into spaces so each row stays on one line.
func Markdown(rs *RecordSet) string {
	if rs == nil {
		return ""
	}
	var sb strings.Builder
	writeRow(&sb, rs.Columns)
	sep := make([]string, len(rs.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&sb, sep)
	for _, row := range rs.Rows {
		writeRow(&sb, row)
	}
	return sb.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func writeRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		sb.WriteString(" ")
		sb.WriteString(cellEscaper.Replace(c))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}
