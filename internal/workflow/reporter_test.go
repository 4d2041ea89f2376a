package workflow

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labrunner/internal/matrix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSuite() SuiteResult {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return SuiteResult{
		RunID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		StartTime:   start,
		EndTime:     start.Add(90 * time.Second),
		Duration:    90 * time.Second,
		TotalCases:  2,
		PassedCases: 1,
		FailedCases: 1,
		CaseResults: []CaseResult{
			{
				Case:     whisperCase,
				Result:   ResultPassed,
				Duration: time.Minute,
				PhaseResults: []PhaseResult{
					{Phase: Phase{Kind: PhaseDownload}, Result: ResultPassed},
				},
			},
			{
				Case:     detrCase,
				Result:   ResultFailed,
				Duration: 30 * time.Second,
				Error:    "DeleteRecipe(Object Detection): timed out",
				PhaseResults: []PhaseResult{
					{Phase: Phase{Kind: PhaseDownload}, Result: ResultPassed},
					{Phase: Phase{Kind: PhaseDeleteRecipe, Recipe: "Object Detection"}, Result: ResultFailed, Error: "timed out"},
				},
			},
		},
	}
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true, false, "")

	r.ReportStart(RunConfiguration{Settings: testSettings(), FailFast: true}, []matrix.TestCase{whisperCase, detrCase})
	r.ReportCaseStart(detrCase, Plan(detrCase))
	r.ReportPhaseResult(detrCase, PhaseResult{Phase: Phase{Kind: PhaseDeleteRecipe, Recipe: "Object Detection"}, Result: ResultFailed, Error: "timed out"})
	r.ReportSuiteResult(sampleSuite())

	out := buf.String()
	assert.Contains(t, out, "Cases: 2")
	assert.Contains(t, out, "Fail fast: true")
	assert.Contains(t, out, "Download → DeployRecipe(Object Detection) → DeleteRecipe(Object Detection) → DeleteModel")
	assert.Contains(t, out, "DeleteRecipe(Object Detection)")
	assert.Contains(t, out, "timed out")
	assert.Contains(t, out, "ggerganov/whisper.cpp")
	assert.Contains(t, out, "1/1")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Some cases failed")
}

func TestConsoleReporter_SavesReport(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false, false, dir)

	r.ReportSuiteResult(sampleSuite())

	matches, err := filepath.Glob(filepath.Join(dir, "labrunner-report-20240501-120000-0f8fad5b.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, buf.String(), "Detailed report saved to")

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var decoded SuiteResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", decoded.RunID)
	assert.Len(t, decoded.CaseResults, 2)
}

func TestConsoleReporter_ProgressBar(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false, true, "")

	r.ReportStart(RunConfiguration{Settings: testSettings()}, []matrix.TestCase{detrCase})
	r.ReportCaseStart(detrCase, Plan(detrCase))
	for _, p := range Plan(detrCase) {
		r.ReportPhaseStart(detrCase, p)
		r.ReportPhaseResult(detrCase, PhaseResult{Phase: p, Result: ResultPassed})
	}

	assert.Contains(t, buf.String(), "4/4")
}

func TestQuietReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewQuietReporter(&buf)

	suite := sampleSuite()
	for _, cr := range suite.CaseResults {
		r.ReportCaseResult(cr)
	}
	r.ReportSuiteResult(suite)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "facebook/detr-resnet-101: DeleteRecipe(Object Detection): timed out")
	assert.Contains(t, lines[1], "1/2 cases failed")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf)

	r.ReportSuiteResult(sampleSuite())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(1), decoded["failed_cases"])
	assert.Len(t, decoded["case_results"], 2)
}

func TestMultiReporter(t *testing.T) {
	a, b := newRecordingReporter(), newRecordingReporter()
	m := MultiReporter{a, b}

	m.ReportStart(RunConfiguration{}, nil)
	m.ReportCaseStart(detrCase, nil)
	m.ReportPhaseStart(detrCase, Phase{Kind: PhaseDownload})
	m.ReportPhaseResult(detrCase, PhaseResult{Phase: Phase{Kind: PhaseDownload}})
	m.ReportCaseResult(CaseResult{Case: detrCase})
	m.ReportSuiteResult(SuiteResult{RunID: "x"})

	for _, r := range []*recordingReporter{a, b} {
		assert.True(t, r.started)
		assert.Equal(t, []string{detrCase.Model}, r.casesStarted)
		assert.Equal(t, []string{"Download"}, r.phaseStarts)
		assert.Len(t, r.phases[detrCase.Model], 1)
		assert.Len(t, r.cases, 1)
		require.NotNil(t, r.suite)
		assert.Equal(t, "x", r.suite.RunID)
	}
}
