package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

var escapeRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Table buffers rows and prints them column-aligned on Flush. Widths are
// measured on the visible text, so cells coloured with Green, Red and friends
// line up with plain ones. A table with no rows prints nothing.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	prefix  string
}

// NewTable creates a table writing to stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to w.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{out: w, headers: headers}
}

// WithPrefix sets a string prepended to every printed line.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row adds a row. Missing cells print empty; extra cells are kept.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows added.
func (t *Table) Len() int { return len(t.rows) }

// Flush prints the header, a dash divider and every row, then resets the
// table.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visibleWidth(h))
	}
	all := append([][]string{t.headers, dividers}, t.rows...)

	var widths []int
	for _, row := range all {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], visibleWidth(cell))
		}
	}

	for _, row := range all {
		var b strings.Builder
		b.WriteString(t.prefix)
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-visibleWidth(cell)+2))
			}
		}
		fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
	}
	t.rows = nil
}

// visibleWidth is the rune count of s without colour escapes.
func visibleWidth(s string) int {
	return utf8.RuneCountInString(escapeRe.ReplaceAllString(s, ""))
}
