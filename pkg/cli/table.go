package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows as aligned, padded columns.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewTable creates a table.
func NewTable(title string, headers []string, rows [][]string) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

// Render returns the table text. A table without rows renders as the header
// and divider only.
func (t *Table) Render() string {
	var sb strings.Builder

	if t.Title != "" {
		sb.WriteString(titleStyle.Render(t.Title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	// Padding counts towards a lipgloss width.
	total := len(widths) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	t.writeRow(&sb, t.Headers, widths, headerStyle)
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", max(total, 0))))
	sb.WriteString("\n")
	for _, row := range t.Rows {
		t.writeRow(&sb, row, widths, cellStyle)
	}
	return sb.String()
}

func (t *Table) writeRow(sb *strings.Builder, cells []string, widths []int, style lipgloss.Style) {
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		sb.WriteString(style.Width(widths[i]).Render(cell))
		if i < len(widths)-1 {
			sb.WriteString(mutedStyle.Render("|"))
		}
	}
	sb.WriteString("\n")
}
