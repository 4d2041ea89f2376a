package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"labrunner/internal/matrix"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/schollz/progressbar/v3"
)

// consoleReporter implements the Reporter interface for terminals
type consoleReporter struct {
	out        io.Writer
	verbose    bool
	progress   bool
	reportPath string

	bar *progressbar.ProgressBar
}

// NewConsoleReporter creates a human-readable reporter writing to out.
// progress shows a phase progress bar; reportPath, when set, is the
// directory a detailed JSON report is saved to.
func NewConsoleReporter(out io.Writer, verbose, progress bool, reportPath string) Reporter {
	return &consoleReporter{
		out:        out,
		verbose:    verbose,
		progress:   progress,
		reportPath: reportPath,
	}
}

// ReportStart is called when the run begins
func (r *consoleReporter) ReportStart(cfg RunConfiguration, cases []matrix.TestCase) {
	fmt.Fprintf(r.out, "🧪 Starting AI Lab lifecycle run\n")
	fmt.Fprintf(r.out, "📡 Bridge: %s\n", stringOrDefault(cfg.Settings.Bridge.Endpoint, "in-process simulator"))
	fmt.Fprintf(r.out, "📋 Cases: %d\n", len(cases))

	if r.verbose {
		fmt.Fprintf(r.out, "⚙️  Configuration:\n")
		fmt.Fprintf(r.out, "   • Matrix: %s\n", stringOrDefault(cfg.MatrixSource, "built-in"))
		fmt.Fprintf(r.out, "   • Extension image: %s\n", cfg.Settings.Extension.OCIImage)
		fmt.Fprintf(r.out, "   • Preinstalled: %t\n", cfg.Settings.Extension.Preinstalled)
		fmt.Fprintf(r.out, "   • CI: %t (platform %s)\n", cfg.Settings.CI, cfg.Settings.Platform)
		fmt.Fprintf(r.out, "   • Fail fast: %t\n", cfg.FailFast)
		if cfg.Timeout > 0 {
			fmt.Fprintf(r.out, "   • Timeout: %v\n", cfg.Timeout)
		}
	}
	fmt.Fprintln(r.out)

	if r.progress {
		total := 0
		for _, tc := range cases {
			total += len(Plan(tc))
		}
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription(color.CyanString("Phases")),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        color.CyanString("█"),
				SaucerHead:    color.CyanString("█"),
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
}

// ReportCaseStart is called when a case begins
func (r *consoleReporter) ReportCaseStart(tc matrix.TestCase, phases []Phase) {
	r.clearBar()
	fmt.Fprintf(r.out, "🎯 %s\n", color.New(color.Bold).Sprint(tc.Model))
	if r.verbose {
		names := make([]string, 0, len(phases))
		for _, p := range phases {
			names = append(names, p.String())
		}
		fmt.Fprintf(r.out, "   📝 %s\n", strings.Join(names, " → "))
	}
}

// ReportPhaseStart is called before a phase executes
func (r *consoleReporter) ReportPhaseStart(tc matrix.TestCase, phase Phase) {
	if r.bar != nil {
		r.bar.Describe(color.CyanString("%s %s", shortModel(tc.Model), phase))
	}
}

// ReportPhaseResult is called when a phase completes
func (r *consoleReporter) ReportPhaseResult(tc matrix.TestCase, result PhaseResult) {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}

	if !r.verbose && result.Result == ResultPassed {
		return
	}
	r.clearBar()
	fmt.Fprintf(r.out, "   %s %s (%v)\n", resultSymbol(result.Result), result.Phase, result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		fmt.Fprintf(r.out, "     %s %s\n", resultSymbol(result.Result), colorFor(result.Result).Sprint(result.Error))
	}
}

// ReportCaseResult is called when a case completes
func (r *consoleReporter) ReportCaseResult(result CaseResult) {
	r.clearBar()
	fmt.Fprintf(r.out, "%s %s %s (%v)\n\n",
		resultSymbol(result.Result),
		result.Case.Model,
		colorFor(result.Result).Sprint(result.Result),
		result.Duration.Round(time.Millisecond))
}

// ReportSuiteResult is called when the run completes
func (r *consoleReporter) ReportSuiteResult(result SuiteResult) {
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Fprintln(r.out)
	}

	fmt.Fprintf(r.out, "🏁 Run %s complete\n", result.RunID)
	fmt.Fprintf(r.out, "⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))
	if result.SetupError != "" {
		fmt.Fprintf(r.out, "💥 Global setup failed: %s\n", color.RedString(result.SetupError))
	}

	if len(result.CaseResults) > 0 {
		fmt.Fprintln(r.out)
		writeSummaryTable(r.out, result.CaseResults)
		fmt.Fprintln(r.out)
	}

	fmt.Fprintf(r.out, "📊 Results:\n")
	fmt.Fprintf(r.out, "   ✅ Passed: %d\n", result.PassedCases)
	if result.FailedCases > 0 {
		fmt.Fprintf(r.out, "   ❌ Failed: %d\n", result.FailedCases)
	}
	if result.ErrorCases > 0 {
		fmt.Fprintf(r.out, "   💥 Errors: %d\n", result.ErrorCases)
	}
	if result.SkippedCases > 0 {
		fmt.Fprintf(r.out, "   ⏭️  Skipped: %d\n", result.SkippedCases)
	}
	fmt.Fprintf(r.out, "   📈 Total: %d\n", result.TotalCases)

	if result.Succeeded() {
		fmt.Fprintf(r.out, "\n🎉 %s\n", color.GreenString("All cases passed!"))
	} else {
		fmt.Fprintf(r.out, "\n💔 %s\n", color.RedString("Some cases failed"))
	}

	if r.reportPath != "" {
		path, err := SaveReport(r.reportPath, result)
		if err != nil {
			fmt.Fprintf(r.out, "⚠️  Failed to save detailed report: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "📄 Detailed report saved to: %s\n", path)
		}
	}
}

func (r *consoleReporter) clearBar() {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
}

// writeSummaryTable prints one aligned row per case. Widths are measured in
// terminal cells.
func writeSummaryTable(w io.Writer, cases []CaseResult) {
	header := []string{"MODEL", "RESULT", "PHASES", "DURATION"}
	rows := [][]string{header}
	for _, cr := range cases {
		passed := 0
		for _, pr := range cr.PhaseResults {
			if pr.Result == ResultPassed {
				passed++
			}
		}
		rows = append(rows, []string{
			cr.Case.Model,
			string(cr.Result),
			fmt.Sprintf("%d/%d", passed, len(cr.PhaseResults)),
			cr.Duration.Round(time.Second).String(),
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			padded := runewidth.FillRight(cell, widths[j])
			if i > 0 && j == 1 {
				padded = colorFor(Result(cell)).Sprint(padded)
			}
			cells[j] = padded
		}
		fmt.Fprintf(w, "   %s\n", strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// SaveReport writes result as indented JSON into dir and returns the file path.
func SaveReport(dir string, result SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := result.StartTime.Format("20060102-150405")
	id := result.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	fullPath := filepath.Join(dir, fmt.Sprintf("labrunner-report-%s-%s.json", timestamp, id))

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}

// resultSymbol returns an appropriate symbol for the result
func resultSymbol(result Result) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

func colorFor(result Result) *color.Color {
	switch result {
	case ResultPassed:
		return color.New(color.FgGreen)
	case ResultFailed, ResultError:
		return color.New(color.FgRed)
	case ResultSkipped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

func shortModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

func stringOrDefault(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

// NewQuietReporter creates a reporter that only outputs essential information
func NewQuietReporter(out io.Writer) Reporter {
	return &quietReporter{out: out}
}

// quietReporter implements minimal output for CI integration
type quietReporter struct {
	out io.Writer
}

func (r *quietReporter) ReportStart(RunConfiguration, []matrix.TestCase) {}
func (r *quietReporter) ReportCaseStart(matrix.TestCase, []Phase)        {}
func (r *quietReporter) ReportPhaseStart(matrix.TestCase, Phase)         {}
func (r *quietReporter) ReportPhaseResult(matrix.TestCase, PhaseResult)  {}

func (r *quietReporter) ReportCaseResult(result CaseResult) {
	// Only report failures
	if result.Result == ResultFailed || result.Result == ResultError {
		fmt.Fprintf(r.out, "%s %s: %s\n", resultSymbol(result.Result), result.Case.Model, result.Error)
	}
}

func (r *quietReporter) ReportSuiteResult(result SuiteResult) {
	if result.Succeeded() {
		fmt.Fprintf(r.out, "✅ All %d cases passed\n", result.PassedCases)
	} else {
		fmt.Fprintf(r.out, "❌ %d/%d cases failed\n", result.FailedCases+result.ErrorCases, result.TotalCases)
	}
}

// NewJSONReporter creates a reporter that outputs the suite result as JSON
func NewJSONReporter(out io.Writer) Reporter {
	return &jsonReporter{out: out}
}

// jsonReporter implements JSON output for machine consumption
type jsonReporter struct {
	out io.Writer
}

func (r *jsonReporter) ReportStart(RunConfiguration, []matrix.TestCase) {}
func (r *jsonReporter) ReportCaseStart(matrix.TestCase, []Phase)        {}
func (r *jsonReporter) ReportPhaseStart(matrix.TestCase, Phase)         {}
func (r *jsonReporter) ReportPhaseResult(matrix.TestCase, PhaseResult)  {}
func (r *jsonReporter) ReportCaseResult(CaseResult)                     {}

func (r *jsonReporter) ReportSuiteResult(result SuiteResult) {
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, `{"error": "Failed to marshal results: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.out, string(jsonData))
}

// MultiReporter fans every event out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) ReportStart(cfg RunConfiguration, cases []matrix.TestCase) {
	for _, r := range m {
		r.ReportStart(cfg, cases)
	}
}

func (m MultiReporter) ReportCaseStart(tc matrix.TestCase, phases []Phase) {
	for _, r := range m {
		r.ReportCaseStart(tc, phases)
	}
}

func (m MultiReporter) ReportPhaseStart(tc matrix.TestCase, phase Phase) {
	for _, r := range m {
		r.ReportPhaseStart(tc, phase)
	}
}

func (m MultiReporter) ReportPhaseResult(tc matrix.TestCase, result PhaseResult) {
	for _, r := range m {
		r.ReportPhaseResult(tc, result)
	}
}

func (m MultiReporter) ReportCaseResult(result CaseResult) {
	for _, r := range m {
		r.ReportCaseResult(result)
	}
}

func (m MultiReporter) ReportSuiteResult(result SuiteResult) {
	for _, r := range m {
		r.ReportSuiteResult(result)
	}
}
