package output

import (
	"strings"
	"unicode/utf8"
)

// Alignment positions text within a table cell.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableColumn describes one table column.
type TableColumn struct {
	Header string
	Align  Alignment
}

// TableData is a header row plus body rows.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// Table prints data with columns padded to their widest cell. Headers are
// always left aligned; cells beyond the last column are dropped.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}

	widths := make([]int, len(data.Columns))
	header := make([]string, len(data.Columns))
	rule := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		widths[i] = utf8.RuneCountInString(col.Header)
		header[i] = col.Header
	}
	for _, row := range data.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}

	lines := make([]string, 0, len(data.Rows)+2)
	lines = append(lines,
		f.Bold(joinCells(header, widths, nil)),
		joinCells(rule, widths, nil),
	)
	for _, row := range data.Rows {
		lines = append(lines, joinCells(row, widths, data.Columns))
	}
	return f.Println("%s", strings.Join(lines, "\n"))
}

// joinCells pads each cell to its width. A nil cols left-aligns everything.
func joinCells(cells []string, widths []int, cols []TableColumn) string {
	var b strings.Builder
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		gap := strings.Repeat(" ", max(0, w-utf8.RuneCountInString(cell)))
		if i > 0 {
			b.WriteString("  ")
		}
		if cols != nil && cols[i].Align == AlignRight {
			b.WriteString(gap + cell)
		} else {
			b.WriteString(cell + gap)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
