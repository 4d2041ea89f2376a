package tui

import (
	"labrunner/internal/matrix"
	"labrunner/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// Reporter forwards run events to a Bubble Tea program.
type Reporter struct {
	send func(tea.Msg)
}

// NewReporter returns a Reporter sending to p.
func NewReporter(p *tea.Program) *Reporter {
	return &Reporter{send: p.Send}
}

func (r *Reporter) ReportStart(_ workflow.RunConfiguration, cases []matrix.TestCase) {
	r.send(runStartedMsg{cases: cases})
}

func (r *Reporter) ReportCaseStart(tc matrix.TestCase, phases []workflow.Phase) {
	r.send(caseStartedMsg{model: tc.Model, phases: phases})
}

func (r *Reporter) ReportPhaseStart(tc matrix.TestCase, phase workflow.Phase) {
	r.send(phaseStartedMsg{model: tc.Model, phase: phase})
}

func (r *Reporter) ReportPhaseResult(tc matrix.TestCase, result workflow.PhaseResult) {
	r.send(phaseResultMsg{model: tc.Model, result: result})
}

func (r *Reporter) ReportCaseResult(result workflow.CaseResult) {
	r.send(caseResultMsg{result: result})
}

func (r *Reporter) ReportSuiteResult(result workflow.SuiteResult) {
	r.send(suiteResultMsg{result: result})
}

var _ workflow.Reporter = (*Reporter)(nil)
