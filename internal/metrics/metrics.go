// Package metrics records run results as Prometheus metrics and writes them
// to a node-exporter textfile once the suite finishes.
package metrics

import (
	"fmt"

	"labrunner/internal/matrix"
	"labrunner/internal/workflow"
	"labrunner/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "labrunner"

// Reporter is a workflow.Reporter that turns results into metrics.
type Reporter struct {
	registry *prometheus.Registry
	path     string

	PhasesTotal   *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	CasesTotal    *prometheus.CounterVec
	CaseDuration  *prometheus.HistogramVec
	SuiteDuration prometheus.Gauge
	SuiteSuccess  prometheus.Gauge
	LastRun       prometheus.Gauge
}

// NewReporter creates a Reporter with its own registry. When path is not
// empty the metrics are written there after the suite result is reported.
func NewReporter(path string) *Reporter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Reporter{
		registry: registry,
		path:     path,
		PhasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_total",
				Help:      "Number of executed phases by kind and result",
			},
			[]string{"phase", "result"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Phase duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"phase"},
		),
		CasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cases_total",
				Help:      "Number of test cases by result",
			},
			[]string{"result"},
		),
		CaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "case_duration_seconds",
				Help:      "Test case duration in seconds",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"model"},
		),
		SuiteDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "suite_duration_seconds",
				Help:      "Duration of the last run in seconds",
			},
		),
		SuiteSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "suite_success",
				Help:      "1 if the last run passed, 0 otherwise",
			},
		),
		LastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}
}

// Registry returns the registry holding the run metrics.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Reporter) ReportStart(workflow.RunConfiguration, []matrix.TestCase) {}

func (r *Reporter) ReportCaseStart(matrix.TestCase, []workflow.Phase) {}

func (r *Reporter) ReportPhaseStart(matrix.TestCase, workflow.Phase) {}

func (r *Reporter) ReportPhaseResult(_ matrix.TestCase, result workflow.PhaseResult) {
	kind := string(result.Phase.Kind)
	r.PhasesTotal.WithLabelValues(kind, string(result.Result)).Inc()
	if result.Result != workflow.ResultSkipped {
		r.PhaseDuration.WithLabelValues(kind).Observe(result.Duration.Seconds())
	}
}

func (r *Reporter) ReportCaseResult(result workflow.CaseResult) {
	r.CasesTotal.WithLabelValues(string(result.Result)).Inc()
	r.CaseDuration.WithLabelValues(result.Case.Model).Observe(result.Duration.Seconds())
}

func (r *Reporter) ReportSuiteResult(result workflow.SuiteResult) {
	r.SuiteDuration.Set(result.Duration.Seconds())
	if result.Succeeded() {
		r.SuiteSuccess.Set(1)
	} else {
		r.SuiteSuccess.Set(0)
	}
	r.LastRun.Set(float64(result.EndTime.Unix()))

	if r.path == "" {
		return
	}
	if err := r.Write(); err != nil {
		logging.Error("Metrics", err, "Failed to write metrics")
		return
	}
	logging.Info("Metrics", "Metrics written to %s", r.path)
}

// Write saves the current metrics to the textfile path.
func (r *Reporter) Write() error {
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", r.path, err)
	}
	return nil
}

var _ workflow.Reporter = (*Reporter)(nil)
