package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

// Table renders aligned columns for text output.
type Table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, right: map[int]bool{}}
}

// AlignRight right-aligns column col, for numbers.
func (t *Table) AlignRight(col int) *Table {
	t.right[col] = true
	return t
}

// AddRow adds a row. Short rows are padded with empty cells.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// RenderText writes the table with a dashed rule under the header.
func (t *Table) RenderText(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}
	widths := t.widths()

	var sb strings.Builder
	if len(t.headers) > 0 {
		t.line(&sb, t.headers, widths)
		rule := make([]string, len(widths))
		for i, n := range widths {
			rule[i] = strings.Repeat("-", n)
		}
		t.line(&sb, rule, widths)
	}
	for _, row := range t.rows {
		t.line(&sb, row, widths)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *Table) String() string {
	var sb strings.Builder
	_ = t.RenderText(&sb)
	return sb.String()
}

func (t *Table) widths() []int {
	n := len(t.headers)
	for _, r := range t.rows {
		n = max(n, len(r))
	}
	widths := make([]int, n)
	for _, r := range append([][]string{t.headers}, t.rows...) {
		for i, c := range r {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	return widths
}

func (t *Table) line(sb *strings.Builder, cells []string, widths []int) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		c := ""
		if i < len(cells) {
			c = cells[i]
		}
		pad := strings.Repeat(" ", w-utf8.RuneCountInString(c))
		if t.right[i] {
			parts[i] = pad + c
		} else {
			parts[i] = c + pad
		}
	}
	sb.WriteString(strings.TrimRight(strings.Join(parts, "  "), " ") + "\n")
}
