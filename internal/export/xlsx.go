// Package export writes reviewed rubric tables to spreadsheet files.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/examdraft/internal/rubric"
)

// SheetName is the worksheet holding the review table.
const SheetName = "學習目標審核表"

// ContentType is the MIME type of the files WriteXLSX produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	objectiveWidth = 60
	scoreWidth     = 10
	defaultWidth   = 18
)

// WriteXLSX writes rs as a single formatted worksheet. Score cells that hold an
// integer are written as numbers so the sheet can sum them.
func WriteXLSX(w io.Writer, rs *rubric.RecordSet) error {
	if rs == nil {
		return fmt.Errorf("write xlsx: no table")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return err
	}

	scoreCols := make([]bool, len(rs.Columns))
	for c, name := range rs.Columns {
		scoreCols[c] = rubric.NameMatches(name, rubric.ScoreKeywords...)
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return fmt.Errorf("column %d: %w", c+1, err)
		}

		width, style := float64(defaultWidth), st.wrap
		switch {
		case strings.Contains(name, "目標"):
			width = objectiveWidth
		case scoreCols[c]:
			width, style = scoreWidth, st.center
		}
		if err := f.SetColStyle(SheetName, col, style); err != nil {
			return fmt.Errorf("set style %s: %w", col, err)
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}

		cell := col + "1"
		if err := f.SetCellStr(SheetName, cell, name); err != nil {
			return fmt.Errorf("header %s: %w", cell, err)
		}
	}

	if len(rs.Columns) > 0 {
		last, _ := excelize.ColumnNumberToName(len(rs.Columns))
		if err := f.SetCellStyle(SheetName, "A1", last+"1", st.header); err != nil {
			return fmt.Errorf("header style: %w", err)
		}
	}

	for r, row := range rs.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("cell (%d,%d): %w", c+1, r+2, err)
			}
			if scoreCols[c] {
				if n, err := strconv.Atoi(v); err == nil {
					if err := f.SetCellValue(SheetName, cell, n); err != nil {
						return fmt.Errorf("set %s: %w", cell, err)
					}
					continue
				}
			}
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

type styles struct {
	header, wrap, center int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D7E4BC"}},
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("header style: %w", err)
	}

	st.wrap, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("wrap style: %w", err)
	}

	st.center, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return st, fmt.Errorf("center style: %w", err)
	}

	return st, nil
}
