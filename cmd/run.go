package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/health"
	"labrunner/internal/lab"
	"labrunner/internal/matrix"
	"labrunner/internal/metrics"
	"labrunner/internal/runlock"
	"labrunner/internal/tui"
	"labrunner/internal/workflow"
	"labrunner/pkg/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type runOptions struct {
	bridge bridgeFlags

	matrixPath   string
	models       []string
	failFast     bool
	timeout      time.Duration
	reportDir    string
	jsonOutput   bool
	quiet        bool
	verbose      bool
	progress     bool
	tui          bool
	metricsFile  string
	lockFile     string
	lockWait     time.Duration
	deleteModels bool
	ci           bool
	platform     string
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the lifecycle test matrix against AI Lab",
		Long: `The run command executes the lifecycle test matrix against the AI Lab
extension. Global setup sizes the window, waits for the container runtime
and makes sure the extension is installed and ACTIVE. Every case then runs
its phases in order:

  Download → CreateService → HealthCheck → DeleteService →
  DeployRecipe(r) → DeleteRecipe(r) → ... → DeleteModel

Models without an inference service skip the three service phases. A
failing phase does not stop the case; the first failure decides its result.

Settings are layered from ~/.config/labrunner/config.yaml,
./.labrunner/config.yaml, .env and the environment, then these flags.

Example usage:
  labrunner run --bridge http://localhost:8765/mcp
  labrunner run --model ggerganov/whisper.cpp --verbose
  labrunner run --matrix matrix.toml --fail-fast --report ./reports
  labrunner run --simulate --sim-speed 0.1 --tui
  labrunner run --json --metrics-file /var/lib/node_exporter/labrunner.prom

The command exits non-zero when any case failed or errored.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			exclusive := 0
			for _, set := range []bool{o.jsonOutput, o.quiet, o.tui} {
				if set {
					exclusive++
				}
			}
			if exclusive > 1 {
				return fmt.Errorf("--json, --quiet and --tui are mutually exclusive")
			}
			if o.timeout < 0 {
				return fmt.Errorf("--timeout must not be negative, got %v", o.timeout)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	o.bridge.register(cmd)
	cmd.Flags().StringVarP(&o.matrixPath, "matrix", "m", "", "Test matrix file (.yaml or .toml); defaults to the built-in matrix")
	cmd.Flags().StringSliceVar(&o.models, "model", nil, "Only run cases for these models (repeatable)")
	cmd.Flags().BoolVar(&o.failFast, "fail-fast", false, "Skip the remaining cases after the first failure")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Overall run timeout (0 means none)")
	cmd.Flags().StringVar(&o.reportDir, "report", "", "Directory to save a detailed JSON report in")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print the suite result as JSON")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "Only print failures and the final verdict")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Print every phase as it completes")
	cmd.Flags().BoolVar(&o.progress, "progress", false, "Show a progress bar over the phases of the running case")
	cmd.Flags().BoolVar(&o.tui, "tui", false, "Follow the run in an interactive terminal UI")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	cmd.Flags().StringVar(&o.lockFile, "lock-file", runlock.DefaultPath(), "Lock file preventing concurrent runs")
	cmd.Flags().DurationVar(&o.lockWait, "lock-wait", 0, "How long to wait for another run to release the lock")
	cmd.Flags().BoolVar(&o.deleteModels, "delete-models", false, "Delete each model in the DeleteModel phase")
	cmd.Flags().BoolVar(&o.ci, "ci", false, "Run as in CI (overrides "+config.EnvCI+")")
	cmd.Flags().StringVar(&o.platform, "platform", "", "Platform name used for gating (overrides "+config.EnvPlatform+")")

	return cmd
}

// applyFlags layers explicitly set flags over the loaded settings.
func (o *runOptions) applyFlags(cmd *cobra.Command, s *config.Settings) {
	if cmd.Flags().Changed("delete-models") {
		s.DeleteModels = o.deleteModels
	}
	if cmd.Flags().Changed("ci") {
		s.CI = o.ci
	}
	if o.platform != "" {
		s.Platform = o.platform
	}
	if o.matrixPath != "" {
		s.Matrix = o.matrixPath
	}
}

func (o *runOptions) run(cmd *cobra.Command) error {
	settings, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	o.applyFlags(cmd, &settings)

	m, err := matrix.LoadOrDefault(settings.Matrix)
	if err != nil {
		return err
	}
	m = m.Filter(o.models)
	if len(m.Cases) == 0 {
		return fmt.Errorf("no test cases match --model %v (available: %v)", o.models, matrixModels(settings.Matrix))
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			if !o.tui {
				fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping run gracefully...")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	lock, err := runlock.Acquire(ctx, o.lockFile, o.lockWait)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.Warn("CLI", "Failed to release run lock: %v", err)
		}
	}()

	driver, cleanup, err := o.bridge.openApplication(ctx, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	runCfg := workflow.RunConfiguration{
		Settings:     settings,
		Timeout:      o.timeout,
		FailFast:     o.failFast,
		MatrixSource: matrixSource(settings.Matrix),
		ReportPath:   o.reportDir,
	}

	out := cmd.OutOrStdout()
	var reporters workflow.MultiReporter
	consoleSavesReport := false
	switch {
	case o.jsonOutput:
		reporters = append(reporters, workflow.NewJSONReporter(out))
	case o.quiet:
		reporters = append(reporters, workflow.NewQuietReporter(out))
	case o.tui:
	default:
		reporters = append(reporters, workflow.NewConsoleReporter(out, o.verbose, o.progress, o.reportDir))
		consoleSavesReport = true
	}

	if o.metricsFile != "" {
		reporters = append(reporters, metrics.NewReporter(o.metricsFile))
	}

	prober := health.NewProber()

	var result *workflow.SuiteResult
	if o.tui {
		result, err = o.runWithTUI(ctx, cancel, driver, prober, reporters, runCfg, m)
	} else {
		result, err = workflow.NewRunner(driver, prober, reporters).Run(ctx, runCfg, m)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if o.reportDir != "" && !consoleSavesReport {
		path, err := workflow.SaveReport(o.reportDir, *result)
		if err != nil {
			logging.Warn("CLI", "Failed to save report: %v", err)
		} else {
			logging.Info("CLI", "Detailed report saved to %s", path)
		}
	}
	if o.tui {
		printTUISummary(out, result)
	}

	if !result.Succeeded() {
		return fmt.Errorf("%d of %d cases did not pass", result.FailedCases+result.ErrorCases, result.TotalCases)
	}
	return nil
}

// runWithTUI runs the suite in the background while the terminal UI owns
// the foreground. Logs are routed to the UI for the duration of the run.
func (o *runOptions) runWithTUI(ctx context.Context, cancel context.CancelFunc, app lab.Application, prober workflow.HealthProber,
	reporters workflow.MultiReporter, cfg workflow.RunConfiguration, m matrix.Matrix) (*workflow.SuiteResult, error) {
	level, err := resolveLogLevel()
	if err != nil {
		return nil, err
	}
	logs := logging.InitForTUI(level)
	defer logging.InitForCLI(level, os.Stderr)

	program := tea.NewProgram(tui.New(cancel, logs), tea.WithAltScreen())
	reporters = append(reporters, tui.NewReporter(program))

	type outcome struct {
		result *workflow.SuiteResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := workflow.NewRunner(app, prober, reporters).Run(ctx, cfg, m)
		logging.CloseTUIChannel()
		program.Quit()
		done <- outcome{result, err}
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("terminal UI failed: %w", err)
	}
	res := <-done
	return res.result, res.err
}

func printTUISummary(w io.Writer, result *workflow.SuiteResult) {
	fmt.Fprintf(w, "Run %s: %d passed, %d failed, %d errors, %d skipped in %v\n",
		result.RunID, result.PassedCases, result.FailedCases, result.ErrorCases, result.SkippedCases,
		result.Duration.Round(time.Millisecond))
	for _, cr := range result.CaseResults {
		if cr.Error != "" {
			fmt.Fprintf(w, "  %s %s: %s\n", cr.Result, cr.Case.Model, cr.Error)
		}
	}
}

func matrixSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

func matrixModels(path string) []string {
	m, err := matrix.LoadOrDefault(path)
	if err != nil {
		return nil
	}
	return m.Models()
}
