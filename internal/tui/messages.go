package tui

import (
	"labrunner/internal/matrix"
	"labrunner/internal/workflow"
	"labrunner/pkg/logging"
)

type runStartedMsg struct {
	cases []matrix.TestCase
}

type caseStartedMsg struct {
	model  string
	phases []workflow.Phase
}

type phaseStartedMsg struct {
	model string
	phase workflow.Phase
}

type phaseResultMsg struct {
	model  string
	result workflow.PhaseResult
}

type caseResultMsg struct {
	result workflow.CaseResult
}

type suiteResultMsg struct {
	result workflow.SuiteResult
}

type logMsg struct {
	entry logging.LogEntry
}

// logChannelClosedMsg stops the log listener.
type logChannelClosedMsg struct{}
