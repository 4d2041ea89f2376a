package workflow

import (
	"context"
	"fmt"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/matrix"
)

// PhaseKind names one step of a test case lifecycle.
type PhaseKind string

const (
	PhaseDownload      PhaseKind = "Download"
	PhaseCreateService PhaseKind = "CreateService"
	PhaseHealthCheck   PhaseKind = "HealthCheck"
	PhaseDeleteService PhaseKind = "DeleteService"
	PhaseDeployRecipe  PhaseKind = "DeployRecipe"
	PhaseDeleteRecipe  PhaseKind = "DeleteRecipe"
	PhaseDeleteModel   PhaseKind = "DeleteModel"
)

// Phase is a planned step. Recipe is set for the recipe phases only.
type Phase struct {
	Kind   PhaseKind `json:"kind"`
	Recipe string    `json:"recipe,omitempty"`
}

func (p Phase) String() string {
	if p.Recipe != "" {
		return fmt.Sprintf("%s(%s)", p.Kind, p.Recipe)
	}
	return string(p.Kind)
}

// Result represents the outcome of a phase, a case or a run
type Result string

const (
	// ResultPassed indicates the phase passed successfully
	ResultPassed Result = "PASSED"
	// ResultFailed indicates a timeout, assertion or missing element
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the phase was gated off or never reached
	ResultSkipped Result = "SKIPPED"
	// ResultError indicates the driver or transport failed
	ResultError Result = "ERROR"
)

// RunConfiguration defines the overall run configuration
type RunConfiguration struct {
	// Settings carries timeouts, intervals and gating flags
	Settings config.Settings `json:"settings"`
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration `json:"timeout"`
	// FailFast stops after the first case that does not pass
	FailFast bool `json:"fail_fast"`
	// MatrixSource describes where the matrix came from
	MatrixSource string `json:"matrix_source,omitempty"`
	// ReportPath is the directory detailed JSON reports are written to
	ReportPath string `json:"report_path,omitempty"`
}

// SuiteResult represents the overall result of a run
type SuiteResult struct {
	// RunID uniquely identifies the run
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	TotalCases   int `json:"total_cases"`
	PassedCases  int `json:"passed_cases"`
	FailedCases  int `json:"failed_cases"`
	SkippedCases int `json:"skipped_cases"`
	ErrorCases   int `json:"error_cases"`

	// SetupError is set when global setup failed and no case ran
	SetupError  string           `json:"setup_error,omitempty"`
	CaseResults []CaseResult     `json:"case_results"`
	Config      RunConfiguration `json:"configuration"`
}

// Succeeded reports whether no case failed or errored.
func (s SuiteResult) Succeeded() bool {
	return s.SetupError == "" && s.FailedCases == 0 && s.ErrorCases == 0
}

// CaseResult represents the result of a single test case
type CaseResult struct {
	Case         matrix.TestCase `json:"case"`
	Result       Result          `json:"result"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Duration     time.Duration   `json:"duration"`
	PhaseResults []PhaseResult   `json:"phase_results"`
	// Error of the first phase that did not pass
	Error string `json:"error,omitempty"`
}

// PhaseResult represents the result of a single phase
type PhaseResult struct {
	Phase     Phase         `json:"phase"`
	Result    Result        `json:"result"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Runner executes a test matrix against one application instance.
type Runner interface {
	Run(ctx context.Context, cfg RunConfiguration, m matrix.Matrix) (*SuiteResult, error)
}

// HealthProber checks that an HTTP endpoint answers within timeout.
type HealthProber interface {
	Probe(ctx context.Context, url string, timeout time.Duration) error
}

// Reporter interface defines how run progress and results are reported
type Reporter interface {
	// ReportStart is called when the run begins
	ReportStart(cfg RunConfiguration, cases []matrix.TestCase)
	// ReportCaseStart is called when a case begins, with its planned phases
	ReportCaseStart(tc matrix.TestCase, phases []Phase)
	// ReportPhaseStart is called before a phase executes
	ReportPhaseStart(tc matrix.TestCase, phase Phase)
	// ReportPhaseResult is called when a phase completes
	ReportPhaseResult(tc matrix.TestCase, result PhaseResult)
	// ReportCaseResult is called when a case completes
	ReportCaseResult(result CaseResult)
	// ReportSuiteResult is called when the run completes
	ReportSuiteResult(result SuiteResult)
}
