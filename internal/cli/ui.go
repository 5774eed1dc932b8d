package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorDefault = lipgloss.AdaptiveColor{Light: "7", Dark: "7"}

	styleError       = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleSuccess     = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleMuted       = lipgloss.NewStyle().Foreground(colorMuted)
	styleTitle       = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleTableHeader = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleTableRow    = lipgloss.NewStyle().Foreground(colorDefault)
	styleTableRowAlt = lipgloss.NewStyle().Foreground(colorDefault).Faint(true)
	styleTableBorder = lipgloss.NewStyle().Foreground(colorMuted)
)

// maxCellWidth truncates long cells so wide sheets stay readable in a terminal.
const maxCellWidth = 40

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// render lays the table out by display width, which keeps Arabic and other
// wide text aligned.
func (t *table) render() string {
	if len(t.headers) == 0 {
		return ""
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	cells := make([][]string, len(t.rows))
	for r, row := range t.rows {
		cells[r] = make([]string, len(t.headers))
		for i := range t.headers {
			if i < len(row) {
				cells[r][i] = truncate(row[i], maxCellWidth)
			}
			if w := lipgloss.Width(cells[r][i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	parts := make([]string, len(t.headers))
	for i, h := range t.headers {
		parts[i] = pad(h, widths[i])
	}
	b.WriteString(styleTableHeader.Render(strings.Join(parts, "  ")))
	b.WriteString("\n")
	for i := range t.headers {
		parts[i] = strings.Repeat("─", widths[i])
	}
	b.WriteString(styleTableBorder.Render(strings.Join(parts, "  ")))
	b.WriteString("\n")
	for r, row := range cells {
		for i := range t.headers {
			parts[i] = pad(row[i], widths[i])
		}
		style := styleTableRow
		if r%2 == 1 {
			style = styleTableRowAlt
		}
		b.WriteString(style.Render(strings.Join(parts, "  ")))
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
