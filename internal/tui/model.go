package tui

import (
	"context"
	"fmt"

	"labrunner/internal/workflow"
	"labrunner/pkg/logging"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const maxLogLines = 200

type phaseView struct {
	phase   workflow.Phase
	running bool
	done    bool
	result  workflow.Result
	err     string
}

type caseView struct {
	model   string
	phases  []phaseView
	started bool
	done    bool
	result  workflow.Result
	err     string
}

// Model is the Bubble Tea model of a run.
type Model struct {
	keys    KeyMap
	spinner spinner.Model
	cancel  context.CancelFunc
	logs    <-chan logging.LogEntry

	cases       []*caseView
	byModel     map[string]*caseView
	totalPhases int
	donePhases  int

	logLines   []string
	showLogs   bool
	suite      *workflow.SuiteResult
	cancelling bool
	quitting   bool
	width      int
	height     int
}

// New creates the run view. cancel aborts the run when the user quits;
// logs may be nil.
func New(cancel context.CancelFunc, logs <-chan logging.LogEntry) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dimStyle

	return Model{
		keys:     DefaultKeyMap(),
		spinner:  s,
		cancel:   cancel,
		logs:     logs,
		byModel:  make(map[string]*caseView),
		showLogs: true,
	}
}

// Init starts the spinner and the log listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenForLogs(m.logs))
}

// listenForLogs reads one entry from ch; Update re-issues it after every
// entry so the listener keeps going until the channel closes.
func listenForLogs(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return logChannelClosedMsg{}
		}
		return logMsg{entry: entry}
	}
}

// Update handles run events, log entries and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.suite != nil || m.cancelling {
				m.quitting = true
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
			m.appendLog("Cancelling run, remaining cases will be skipped")
			return m, nil
		case key.Matches(msg, m.keys.ToggleLogs):
			m.showLogs = !m.showLogs
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case logMsg:
		line := fmt.Sprintf("%s [%s] %s: %s", msg.entry.Timestamp.Format("15:04:05"), msg.entry.Level, msg.entry.Subsystem, msg.entry.Message)
		if msg.entry.Err != nil {
			line += ": " + msg.entry.Err.Error()
		}
		m.appendLog(line)
		return m, listenForLogs(m.logs)

	case logChannelClosedMsg:
		return m, nil

	case runStartedMsg:
		m.cases = nil
		m.byModel = make(map[string]*caseView)
		m.totalPhases, m.donePhases = 0, 0
		for _, tc := range msg.cases {
			cv := &caseView{model: tc.Model}
			for _, p := range workflow.Plan(tc) {
				cv.phases = append(cv.phases, phaseView{phase: p})
			}
			m.totalPhases += len(cv.phases)
			m.cases = append(m.cases, cv)
			m.byModel[tc.Model] = cv
		}
		return m, nil

	case caseStartedMsg:
		cv := m.caseFor(msg.model)
		cv.started = true
		if len(cv.phases) != len(msg.phases) {
			m.totalPhases += len(msg.phases) - len(cv.phases)
			cv.phases = cv.phases[:0]
			for _, p := range msg.phases {
				cv.phases = append(cv.phases, phaseView{phase: p})
			}
		}
		return m, nil

	case phaseStartedMsg:
		if pv := m.caseFor(msg.model).phaseFor(msg.phase); pv != nil {
			pv.running = true
		}
		return m, nil

	case phaseResultMsg:
		if pv := m.caseFor(msg.model).phaseFor(msg.result.Phase); pv != nil && !pv.done {
			pv.running = false
			pv.done = true
			pv.result = msg.result.Result
			pv.err = msg.result.Error
			m.donePhases++
		}
		return m, nil

	case caseResultMsg:
		cv := m.caseFor(msg.result.Case.Model)
		cv.done = true
		cv.result = msg.result.Result
		cv.err = msg.result.Error
		for i := range cv.phases {
			if !cv.phases[i].done {
				cv.phases[i].done = true
				cv.phases[i].result = workflow.ResultSkipped
				m.donePhases++
			}
		}
		return m, nil

	case suiteResultMsg:
		result := msg.result
		m.suite = &result
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) caseFor(model string) *caseView {
	cv, ok := m.byModel[model]
	if !ok {
		cv = &caseView{model: model}
		m.byModel[model] = cv
		m.cases = append(m.cases, cv)
	}
	return cv
}

func (cv *caseView) phaseFor(phase workflow.Phase) *phaseView {
	for i := range cv.phases {
		if cv.phases[i].phase == phase {
			return &cv.phases[i]
		}
	}
	return nil
}

func (m *Model) appendLog(line string) {
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
}

// Suite returns the final result once the run finished.
func (m Model) Suite() *workflow.SuiteResult {
	return m.suite
}
