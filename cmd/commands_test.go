package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labrunner/internal/matrix"
	"labrunner/internal/workflow"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig runs the test from an empty project directory with a private
// home, so only projectConfig (when non-empty) is layered over the defaults.
func isolateConfig(t *testing.T, projectConfig string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	for _, key := range []string{"LABRUNNER_BRIDGE", "LABRUNNER_MATRIX", "LABRUNNER_PLATFORM", "EXTENSION_PREINSTALLED", "EXTENSION_OCI_IMAGE", "CI"} {
		t.Setenv(key, "")
	}
	t.Chdir(dir)

	if projectConfig != "" {
		path := filepath.Join(dir, ".labrunner", "config.yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(projectConfig), 0644))
	}
	return dir
}

// fastConfig keeps failing waits short.
const fastConfig = `
timeouts:
  appExists: 200ms
  appRunning: 200ms
  healthCheck: 500ms
intervals:
  poll: 10ms
  download: 10ms
`

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	isolateConfig(t, "")

	out, err := execute(t, newPlanCmd(), "--model", "facebook/detr-resnet-101")
	require.NoError(t, err)
	assert.Contains(t, out, "facebook/detr-resnet-101 (4 phases)")
	assert.Contains(t, out, "Download → DeployRecipe(Object Detection) → DeleteRecipe(Object Detection) → DeleteModel")
	assert.NotContains(t, out, "whisper")
}

func TestPlanCommand_JSONFromMatrixFile(t *testing.T) {
	dir := isolateConfig(t, "")
	path := filepath.Join(dir, "matrix.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[cases]]
model = "ggerganov/whisper.cpp"
has_service = true
recipes = ["Audio to Text"]
`), 0644))

	out, err := execute(t, newPlanCmd(), "--matrix", path, "--json")
	require.NoError(t, err)

	var planned []plannedCase
	require.NoError(t, json.Unmarshal([]byte(out), &planned))
	require.Len(t, planned, 1)
	assert.Equal(t, "ggerganov/whisper.cpp", planned[0].Model)
	assert.Len(t, planned[0].Phases, 7)
}

func TestPlanCommand_NoCases(t *testing.T) {
	isolateConfig(t, "")

	out, err := execute(t, newPlanCmd(), "--model", "nobody/nothing")
	require.NoError(t, err)
	assert.Equal(t, "No test cases selected.\n", out)
}

func TestRunCommand_Simulated(t *testing.T) {
	dir := isolateConfig(t, fastConfig)
	metricsFile := filepath.Join(dir, "labrunner.prom")
	reports := filepath.Join(dir, "reports")

	out, err := execute(t, newRunCmd(),
		"--simulate", "--sim-speed", "0", "--ci=false", "--quiet",
		"--model", "ggerganov/whisper.cpp", "--model", "facebook/detr-resnet-101",
		"--lock-file", filepath.Join(dir, "run.lock"),
		"--metrics-file", metricsFile,
		"--report", reports,
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "All 2 cases passed")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "labrunner_suite_success 1")

	saved, err := filepath.Glob(filepath.Join(reports, "labrunner-report-*.json"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestRunCommand_FailingCase(t *testing.T) {
	dir := isolateConfig(t, fastConfig)
	path := filepath.Join(dir, "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cases:
  - model: ggerganov/whisper.cpp
    hasService: false
    recipes: ["Missing Recipe"]
`), 0644))

	out, err := execute(t, newRunCmd(),
		"--simulate", "--sim-speed", "0", "--json", "--matrix", path,
		"--lock-file", filepath.Join(dir, "run.lock"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 cases did not pass")

	assert.NotContains(t, out, "Usage:")
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded), "stdout must stay valid JSON when a case fails")
	assert.Equal(t, float64(1), decoded["total_cases"])
	assert.Contains(t, out, "Missing Recipe")
}

func TestRunCommand_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "exclusive outputs",
			args:    []string{"--json", "--quiet"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "negative timeout",
			args:    []string{"--timeout", "-1s"},
			wantErr: "--timeout must not be negative",
		},
		{
			name:    "no bridge",
			args:    []string{},
			wantErr: "no automation bridge configured",
		},
		{
			name:    "unknown model",
			args:    []string{"--model", "nobody/nothing", "--simulate"},
			wantErr: "no test cases match",
		},
		{
			name:    "negative simulator speed",
			args:    []string{"--simulate", "--sim-speed", "-1"},
			wantErr: "--sim-speed must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolateConfig(t, "")
			args := append([]string{"--lock-file", filepath.Join(dir, "run.lock")}, tt.args...)
			_, err := execute(t, newRunCmd(), args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAppsCommand_Simulated(t *testing.T) {
	isolateConfig(t, "")

	out, err := execute(t, newAppsCmd(), "--simulate", "--sim-speed", "0", "--plain")
	require.NoError(t, err)
	assert.Equal(t, "No applications deployed.\n", out)
}

func TestSimulateCommand_InvalidFlags(t *testing.T) {
	_, err := execute(t, newSimulateCmd(), "--transport", "carrier-pigeon")
	assert.ErrorContains(t, err, "invalid transport 'carrier-pigeon'")

	_, err = execute(t, newSimulateCmd(), "--speed", "-2")
	assert.ErrorContains(t, err, "--speed must not be negative")
}

func TestSimulateOptions_LabOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download: 40ms\n"), 0644))

	o := &simulateOptions{
		speed:        0.5,
		timingsFile:  path,
		preinstalled: true,
		downloaded:   []string{"ggerganov/whisper.cpp"},
		stuckApps:    []string{"chatbot"},
		brokenModels: []string{"facebook/detr-resnet-101"},
		unhealthy:    true,
	}
	opts, err := o.labOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 6)

	o.timingsFile = filepath.Join(dir, "missing.yaml")
	_, err = o.labOptions()
	assert.Error(t, err)
}

func TestRunCommand_Timeout(t *testing.T) {
	dir := isolateConfig(t, fastConfig)
	path := filepath.Join(dir, "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cases:\n  - model: ggerganov/whisper.cpp\n    hasService: false\n"), 0644))

	out, err := execute(t, newRunCmd(),
		"--simulate", "--sim-speed", "0", "--json", "--ci=false", "--matrix", path,
		"--lock-file", filepath.Join(dir, "run.lock"), "--timeout", time.Minute.String(),
	)
	require.NoError(t, err)

	var result struct {
		PassedCases int `json:"passed_cases"`
		Config      struct {
			Timeout      time.Duration `json:"timeout"`
			MatrixSource string        `json:"matrix_source"`
		} `json:"configuration"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.PassedCases)
	assert.Equal(t, time.Minute, result.Config.Timeout)
	assert.Equal(t, path, result.Config.MatrixSource)
}

func TestPrintTUISummary(t *testing.T) {
	result := &workflow.SuiteResult{
		RunID:       "run-1",
		TotalCases:  2,
		PassedCases: 1,
		FailedCases: 1,
		Duration:    1500 * time.Millisecond,
		CaseResults: []workflow.CaseResult{
			{Case: matrix.TestCase{Model: "ggerganov/whisper.cpp"}, Result: workflow.ResultPassed},
			{Case: matrix.TestCase{Model: "facebook/detr-resnet-101"}, Result: workflow.ResultFailed, Error: "DeleteRecipe(Object Detection): timed out"},
		},
	}

	var buf bytes.Buffer
	printTUISummary(&buf, result)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Run run-1: 1 passed, 1 failed, 0 errors, 0 skipped in 1.5s", lines[0])
	assert.Equal(t, "  FAILED facebook/detr-resnet-101: DeleteRecipe(Object Detection): timed out", lines[1])
}

func TestCommandsSilenceUsage(t *testing.T) {
	for _, cmd := range []*cobra.Command{newRunCmd(), newPlanCmd(), newAppsCmd(), newSimulateCmd()} {
		assert.True(t, cmd.SilenceUsage, cmd.Name())
	}
}
