package tui

import (
	"fmt"
	"strings"
	"time"

	"labrunner/internal/workflow"

	"github.com/charmbracelet/lipgloss"
)

const visibleLogLines = 8

// View renders the case list, progress and recent log lines.
func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("AI Lab lifecycle run  %d/%d phases", m.donePhases, m.totalPhases)
	if m.cancelling && m.suite == nil {
		title += "  (cancelling)"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")

	for _, cv := range m.cases {
		b.WriteString(m.renderCase(cv))
	}

	if m.suite != nil {
		b.WriteString("\n")
		b.WriteString(renderSummary(*m.suite))
		b.WriteString("\n")
	}

	if m.showLogs && len(m.logLines) > 0 {
		start := len(m.logLines) - visibleLogLines
		if start < 0 {
			start = 0
		}
		panel := logPanelStyle
		if m.width > 4 {
			panel = panel.Width(m.width - 4)
		}
		b.WriteString("\n")
		b.WriteString(panel.Render(strings.Join(m.logLines[start:], "\n")))
		b.WriteString("\n")
	}

	if m.suite == nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n%s • %s",
			m.keys.Quit.Help().Key+" "+m.keys.Quit.Help().Desc,
			m.keys.ToggleLogs.Help().Key+" "+m.keys.ToggleLogs.Help().Desc)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderCase(cv *caseView) string {
	var b strings.Builder

	icon := IconPending
	switch {
	case cv.done:
		icon = resultIcon(cv.result)
	case cv.started:
		icon = m.spinner.View()
	}
	b.WriteString(fmt.Sprintf("%s %s\n", icon, caseStyle.Render(cv.model)))

	if !cv.started && !cv.done {
		return b.String()
	}
	for _, pv := range cv.phases {
		b.WriteString(phaseStyle.Render(m.renderPhase(pv)))
		b.WriteString("\n")
	}
	if cv.done && cv.err != "" && cv.result != workflow.ResultPassed {
		b.WriteString(phaseStyle.Render(errorStyle.Render(cv.err)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPhase(pv phaseView) string {
	switch {
	case pv.running:
		return fmt.Sprintf("%s %s", m.spinner.View(), pv.phase)
	case !pv.done:
		return dimStyle.Render(fmt.Sprintf("%s %s", IconPending, pv.phase))
	case pv.result == workflow.ResultSkipped:
		return dimStyle.Render(fmt.Sprintf("%s %s", IconSkipped, pv.phase))
	default:
		return fmt.Sprintf("%s %s", resultIcon(pv.result), pv.phase)
	}
}

func renderSummary(s workflow.SuiteResult) string {
	if s.SetupError != "" {
		return errorStyle.Render(fmt.Sprintf("%s Global setup failed: %s", IconError, s.SetupError))
	}
	line := fmt.Sprintf("Passed: %d  Failed: %d  Errors: %d  Skipped: %d  Duration: %v",
		s.PassedCases, s.FailedCases, s.ErrorCases, s.SkippedCases, s.Duration.Round(time.Millisecond))
	if s.Succeeded() {
		return passedStyle.Render(IconPassed + " " + line)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, errorStyle.Render(IconFailed+" "), line)
}

func resultIcon(r workflow.Result) string {
	switch r {
	case workflow.ResultPassed:
		return IconPassed
	case workflow.ResultFailed:
		return IconFailed
	case workflow.ResultError:
		return IconError
	default:
		return IconSkipped
	}
}
