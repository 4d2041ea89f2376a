package workflow_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/health"
	"labrunner/internal/matrix"
	"labrunner/internal/mcpdriver"
	"labrunner/internal/simulator"
	"labrunner/internal/workflow"

	"github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulatedSettings() config.Settings {
	s := config.Default()
	s.CI = true
	s.DeleteModels = true
	s.Platform = "darwin"
	d := 3 * time.Second
	s.Timeouts = config.Timeouts{
		Runtime: d, ExtensionActive: d, Download: d, ServiceCreate: d,
		HealthCheck: d, ServiceDelete: d, RecipeDeploy: d, AppExists: d,
		AppRunning: d, AppStopped: d, AppDeleted: d, ModelDelete: d,
	}
	s.Intervals = config.Intervals{Poll: 5 * time.Millisecond, Download: 5 * time.Millisecond}
	return s
}

func runSimulated(t *testing.T, settings config.Settings, m matrix.Matrix, opts ...simulator.Option) (*workflow.SuiteResult, *simulator.Lab) {
	t.Helper()
	ctx := context.Background()

	d := 10 * time.Millisecond
	timings := simulator.Timings{
		RuntimeBoot: d, ExtensionActivation: d, ViewLoad: d, Download: d, ModelDelete: d,
		ServiceStart: d, Deployment: d, AppStart: d, AppStop: d, AppDelete: d,
	}
	l, err := simulator.New(append([]simulator.Option{simulator.WithTimings(timings)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(ctx) })

	c, err := client.NewInProcessClient(l.MCPServer("test"))
	require.NoError(t, err)
	driver, err := mcpdriver.New(ctx, c, mcpdriver.WithLoadInterval(5*time.Millisecond))
	require.NoError(t, err)

	prober := health.NewProber(health.WithRetryInterval(5*time.Millisecond), health.WithRequestTimeout(time.Second))
	var out bytes.Buffer
	runner := workflow.NewRunner(driver, prober, workflow.NewQuietReporter(&out))

	result, err := runner.Run(ctx, workflow.RunConfiguration{Settings: settings}, m)
	require.NoError(t, err)
	return result, l
}

func TestRun_DefaultMatrixAgainstSimulator(t *testing.T) {
	m, err := matrix.Default()
	require.NoError(t, err)

	result, l := runSimulated(t, simulatedSettings(), m)

	require.Empty(t, result.SetupError)
	for _, cr := range result.CaseResults {
		assert.Equal(t, workflow.ResultPassed, cr.Result, "%s: %s", cr.Case.Model, cr.Error)
		assert.Len(t, cr.PhaseResults, len(workflow.Plan(cr.Case)))
	}
	assert.True(t, result.Succeeded())
	assert.Equal(t, len(m.Cases), result.PassedCases)

	w, h := l.Viewport()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 900, h)
	assert.Equal(t, len(m.Cases), l.WebviewAttaches())
	assert.Empty(t, l.Applications())

	for _, tc := range m.Cases {
		downloaded, err := l.IsModelDownloaded(tc.Model)
		require.NoError(t, err)
		assert.False(t, downloaded, "%s should have been deleted", tc.Model)
	}
}

func TestRun_StuckAppFailsDeleteRecipe(t *testing.T) {
	m := matrix.Matrix{Cases: []matrix.TestCase{{
		Model:   "facebook/detr-resnet-101",
		Recipes: []string{"Object Detection"},
	}}}

	settings := simulatedSettings()
	settings.Timeouts.AppRunning = 100 * time.Millisecond

	result, _ := runSimulated(t, settings, m, simulator.WithStuckApps("Object Detection"), simulator.WithPreinstalledExtension())

	cr := result.CaseResults[0]
	assert.Equal(t, workflow.ResultFailed, cr.Result)
	assert.Contains(t, cr.Error, "DeleteRecipe(Object Detection)")
	assert.Contains(t, cr.Error, "last observed: STARTING")
}

func TestRun_UnhealthyServiceFailsHealthCheck(t *testing.T) {
	m := matrix.Matrix{Cases: []matrix.TestCase{{
		Model:      "ggerganov/whisper.cpp",
		HasService: true,
	}}}

	settings := simulatedSettings()
	settings.Timeouts.HealthCheck = 100 * time.Millisecond

	result, _ := runSimulated(t, settings, m, simulator.WithUnhealthyServices(), simulator.WithPreinstalledExtension())

	cr := result.CaseResults[0]
	assert.Equal(t, workflow.ResultFailed, cr.Result)
	assert.Contains(t, cr.Error, "HealthCheck: timed out")

	byPhase := map[workflow.PhaseKind]workflow.Result{}
	for _, pr := range cr.PhaseResults {
		byPhase[pr.Phase.Kind] = pr.Result
	}
	assert.Equal(t, workflow.ResultFailed, byPhase[workflow.PhaseHealthCheck])
	assert.Equal(t, workflow.ResultPassed, byPhase[workflow.PhaseDeleteService], "service is still cleaned up")
	assert.Equal(t, workflow.ResultPassed, byPhase[workflow.PhaseDeleteModel])
}
