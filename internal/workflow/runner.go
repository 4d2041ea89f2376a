package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labrunner/internal/lab"
	"labrunner/internal/matrix"
	"labrunner/pkg/logging"

	"github.com/google/uuid"
)

// runner implements the Runner interface
type runner struct {
	app      lab.Application
	prober   HealthProber
	reporter Reporter
}

// NewRunner creates a runner driving app. The runner owns app and closes it
// when the run ends.
func NewRunner(app lab.Application, prober HealthProber, reporter Reporter) Runner {
	return &runner{
		app:      app,
		prober:   prober,
		reporter: reporter,
	}
}

// Run executes every case of m in order against the shared application.
func (r *runner) Run(ctx context.Context, cfg RunConfiguration, m matrix.Matrix) (*SuiteResult, error) {
	defer r.teardown()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matrix: %w", err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result := &SuiteResult{
		RunID:       uuid.New().String(),
		StartTime:   time.Now(),
		TotalCases:  len(m.Cases),
		CaseResults: make([]CaseResult, 0, len(m.Cases)),
		Config:      cfg,
	}
	logging.Info("Runner", "Starting run %s with %d cases", result.RunID, len(m.Cases))

	r.reporter.ReportStart(cfg, m.Cases)

	if err := r.setup(ctx, cfg); err != nil {
		logging.Error("Runner", err, "Global setup failed, aborting all cases")
		result.SetupError = err.Error()
		for _, tc := range m.Cases {
			caseResult := abortedCase(tc, ResultError, fmt.Sprintf("global setup failed: %v", err))
			result.CaseResults = append(result.CaseResults, caseResult)
			r.updateCounters(result, caseResult)
			r.reporter.ReportCaseResult(caseResult)
		}
		r.finish(result)
		return result, nil
	}

	stopped := ""
	for _, tc := range m.Cases {
		if stopped == "" && ctx.Err() != nil {
			stopped = fmt.Sprintf("run cancelled: %v", ctx.Err())
		}

		var caseResult CaseResult
		if stopped != "" {
			caseResult = abortedCase(tc, ResultSkipped, stopped)
		} else {
			caseResult = r.runCase(ctx, cfg, tc)
		}

		result.CaseResults = append(result.CaseResults, caseResult)
		r.updateCounters(result, caseResult)
		r.reporter.ReportCaseResult(caseResult)

		if stopped == "" && cfg.FailFast && (caseResult.Result == ResultFailed || caseResult.Result == ResultError) {
			stopped = fmt.Sprintf("skipped after %s failed (fail-fast)", tc.Model)
		}
	}

	r.finish(result)
	return result, nil
}

func (r *runner) finish(result *SuiteResult) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	logging.Info("Runner", "Run %s finished in %v: %d passed, %d failed, %d errors, %d skipped",
		result.RunID, result.Duration, result.PassedCases, result.FailedCases, result.ErrorCases, result.SkippedCases)
	r.reporter.ReportSuiteResult(*result)
}

// setup brings the shared application into a known state: sized viewport,
// running container runtime, and an active extension.
func (r *runner) setup(ctx context.Context, cfg RunConfiguration) error {
	s := cfg.Settings

	if err := r.app.ResizeViewport(ctx, s.Viewport.Width, s.Viewport.Height); err != nil {
		return fmt.Errorf("failed to resize viewport: %w", err)
	}

	dashboard, err := r.app.OpenDashboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to open dashboard: %w", err)
	}
	if err := waitForLoad(ctx, "dashboard to load", s.Timeouts.Runtime, dashboard); err != nil {
		return err
	}

	if err := awaitTrue(ctx, "container runtime to be running", s.Intervals.Poll, s.Timeouts.Runtime, r.app.RuntimeRunning); err != nil {
		return err
	}

	extensions, err := r.app.OpenExtensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to open extensions: %w", err)
	}

	if s.Extension.Preinstalled {
		logging.Info("Runner", "Extension %s is preinstalled, skipping installation", s.Extension.Label)
	} else {
		installed, err := extensions.ExtensionIsInstalled(ctx, s.Extension.Label)
		if err != nil {
			return fmt.Errorf("failed to check extension installation: %w", err)
		}
		if installed {
			logging.Info("Runner", "Extension %s already installed", s.Extension.Label)
		} else {
			logging.Info("Runner", "Installing extension from %s", s.Extension.OCIImage)
			if err := extensions.InstallExtensionFromOCIImage(ctx, s.Extension.OCIImage); err != nil {
				return fmt.Errorf("failed to install extension from %s: %w", s.Extension.OCIImage, err)
			}
		}
	}

	_, err = awaitStatus(ctx, fmt.Sprintf("extension %s to be %s", s.Extension.Label, lab.StatusActive),
		s.Intervals.Poll, s.Timeouts.ExtensionActive, lab.StatusActive,
		func(ctx context.Context) (string, error) {
			ext, err := extensions.GetInstalledExtension(ctx, s.Extension.Name, s.Extension.Label)
			if err != nil {
				return "", err
			}
			return ext.Status(ctx)
		})
	return err
}

func (r *runner) teardown() {
	if err := r.app.Close(); err != nil {
		logging.Warn("Runner", "Failed to close application: %v", err)
	}
}

// runCase executes the planned phases of tc. A phase failure does not stop
// the remaining phases; the first failure decides the case result.
func (r *runner) runCase(ctx context.Context, cfg RunConfiguration, tc matrix.TestCase) CaseResult {
	phases := Plan(tc)
	result := CaseResult{
		Case:         tc,
		StartTime:    time.Now(),
		PhaseResults: make([]PhaseResult, 0, len(phases)),
		Result:       ResultPassed,
	}
	r.reporter.ReportCaseStart(tc, phases)
	logging.Info("Runner", "Starting case %s (%d phases)", tc.Model, len(phases))

	if err := r.app.AttachWebview(ctx); err != nil {
		reason := fmt.Sprintf("failed to attach webview: %v", err)
		for _, phase := range phases {
			pr := skippedPhase(phase, reason)
			result.PhaseResults = append(result.PhaseResults, pr)
			r.reporter.ReportPhaseResult(tc, pr)
		}
		result.Result = ResultError
		result.Error = reason
		return finishCase(result)
	}

	state := &caseState{tc: tc}
	for _, phase := range phases {
		var pr PhaseResult
		if ctx.Err() != nil {
			pr = skippedPhase(phase, fmt.Sprintf("run cancelled: %v", ctx.Err()))
		} else {
			r.reporter.ReportPhaseStart(tc, phase)
			pr = r.runPhase(ctx, cfg, state, phase)
		}

		result.PhaseResults = append(result.PhaseResults, pr)
		r.reporter.ReportPhaseResult(tc, pr)

		if result.Result == ResultPassed && (pr.Result == ResultFailed || pr.Result == ResultError) {
			result.Result = pr.Result
			result.Error = fmt.Sprintf("%s: %s", pr.Phase, pr.Error)
		}
	}

	return finishCase(result)
}

func (r *runner) runPhase(ctx context.Context, cfg RunConfiguration, state *caseState, phase Phase) PhaseResult {
	result := PhaseResult{
		Phase:     phase,
		StartTime: time.Now(),
	}

	err := r.executePhase(ctx, cfg, state, phase)
	result.Result = classify(err)
	if err != nil {
		result.Error = err.Error()
		if result.Result == ResultSkipped {
			logging.Info("Runner", "%s %s skipped: %v", state.tc.Model, phase, err)
		} else {
			logging.Error("Runner", err, "%s %s %s", state.tc.Model, phase, result.Result)
		}
	} else {
		logging.Debug("Runner", "%s %s passed", state.tc.Model, phase)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

func (r *runner) executePhase(ctx context.Context, cfg RunConfiguration, state *caseState, phase Phase) error {
	p := phases{app: r.app, prober: r.prober, settings: cfg.Settings, state: state}

	switch phase.Kind {
	case PhaseDownload:
		return p.download(ctx)
	case PhaseCreateService:
		return p.createService(ctx)
	case PhaseHealthCheck:
		return p.healthCheck(ctx)
	case PhaseDeleteService:
		return p.deleteService(ctx)
	case PhaseDeployRecipe:
		return p.deployRecipe(ctx, phase.Recipe)
	case PhaseDeleteRecipe:
		return p.deleteRecipe(ctx, phase.Recipe)
	case PhaseDeleteModel:
		return p.deleteModel(ctx)
	default:
		return fmt.Errorf("unknown phase %q", phase.Kind)
	}
}

// classify maps a phase error to a result. Timeouts, assertions and missing
// elements fail the phase; anything else from the driver is an error.
func classify(err error) Result {
	var skip *skipError
	switch {
	case err == nil:
		return ResultPassed
	case errors.As(err, &skip):
		return ResultSkipped
	case lab.IsFailure(err):
		return ResultFailed
	default:
		return ResultError
	}
}

// updateCounters updates the suite counters based on a case result
func (r *runner) updateCounters(suiteResult *SuiteResult, caseResult CaseResult) {
	switch caseResult.Result {
	case ResultPassed:
		suiteResult.PassedCases++
	case ResultFailed:
		suiteResult.FailedCases++
	case ResultSkipped:
		suiteResult.SkippedCases++
	case ResultError:
		suiteResult.ErrorCases++
	}
}

func abortedCase(tc matrix.TestCase, result Result, reason string) CaseResult {
	now := time.Now()
	cr := CaseResult{
		Case:      tc,
		Result:    result,
		StartTime: now,
		EndTime:   now,
		Error:     reason,
	}
	for _, phase := range Plan(tc) {
		cr.PhaseResults = append(cr.PhaseResults, skippedPhase(phase, reason))
	}
	return cr
}

func skippedPhase(phase Phase, reason string) PhaseResult {
	now := time.Now()
	return PhaseResult{
		Phase:     phase,
		Result:    ResultSkipped,
		StartTime: now,
		EndTime:   now,
		Error:     reason,
	}
}

func finishCase(result CaseResult) CaseResult {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}
