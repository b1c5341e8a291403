package pod

import (
	"fmt"
	"io"
	"strings"

	"nesram/coloransi"
)

// FormatFunc decorates a cell after its width has been measured.
type FormatFunc func(value string) string

type ColumnSpec struct {
	Header     string
	Blank      string // shown for empty cells, "-" by default
	Right      bool   // right-align, for numbers and sizes
	MinWidth   int
	FormatFunc FormatFunc
}

// Table lays out rows under a header line and a dashed rule. Widths count
// visible characters, so colored cells line up.
type Table struct {
	columns []ColumnSpec
	rows    [][]string
	widths  []int
}

func NewTable(cols ...ColumnSpec) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		if t.columns[i].Blank == "" {
			t.columns[i].Blank = "-"
		}
		t.widths[i] = max(t.columns[i].MinWidth, len(t.columns[i].Header))
	}
	return t
}

// AddRow appends a row. Missing trailing cells are blank, extra cells are
// dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		if v == "" {
			v = t.columns[i].Blank
		}
		row[i] = v
		t.widths[i] = max(t.widths[i], coloransi.VisibleLength(v))
	}
	t.rows = append(t.rows, row)
}

// Len is the number of rows added so far.
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render(w io.Writer) error {
	cells := make([]string, len(t.columns))

	for i, col := range t.columns {
		cells[i] = t.align(i, col.Header)
	}
	if err := t.line(w, cells); err != nil {
		return err
	}

	for i := range cells {
		cells[i] = strings.Repeat("-", t.widths[i])
	}
	if err := t.line(w, cells); err != nil {
		return err
	}

	for _, row := range t.rows {
		for i, v := range row {
			cell := t.align(i, v)
			if f := t.columns[i].FormatFunc; f != nil && v != t.columns[i].Blank {
				cell = strings.Replace(cell, v, f(v), 1)
			}
			cells[i] = cell
		}
		if err := t.line(w, cells); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) line(w io.Writer, cells []string) error {
	_, err := fmt.Fprintln(w, strings.Join(cells, " "))
	return err
}

// align pads s to the width of column i.
func (t *Table) align(i int, s string) string {
	gap := t.widths[i] - coloransi.VisibleLength(s)
	if gap <= 0 {
		return s
	}
	if t.columns[i].Right {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

// Highlight returns a FormatFunc that colors values for which match is true.
func Highlight(color coloransi.ColorCode, match func(string) bool) FormatFunc {
	return func(value string) string {
		if match(value) {
			return coloransi.Foreground(color, value)
		}
		return value
	}
}
