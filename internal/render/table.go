package render

import (
	"strings"

	"labrunner/internal/lab"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"})
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"})
)

const columnGap = "   "

// AppsTable renders the running applications table. With styled unset the
// output is plain text suitable for logs and tests.
func AppsTable(apps []lab.AppInfo, catalog []lab.Recipe, styled bool) string {
	if len(apps) == 0 {
		return "No applications deployed.\n"
	}

	rows := [][]string{{"NAME", "MODEL", "STATUS"}}
	for _, app := range apps {
		cell := AppNameCell(app, catalog)
		name, status := cell.String(), app.Status
		if styled {
			name = cell.View()
			status = statusStyle(app.Status).Render(app.Status)
		}
		rows = append(rows, []string{name, app.ModelID, status})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, col := range row {
			if w := lipgloss.Width(col); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cols := make([]string, len(row))
		for i, col := range row {
			pad := widths[i] - lipgloss.Width(col)
			if r == 0 && styled {
				col = headerStyle.Render(col)
			}
			if i < len(row)-1 {
				col += strings.Repeat(" ", pad)
			}
			cols[i] = col
		}
		b.WriteString(strings.Join(cols, columnGap))
		b.WriteString("\n")
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	if status == lab.StatusRunning {
		return runningStyle
	}
	return otherStyle
}
