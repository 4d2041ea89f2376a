// Package matrix holds the declarative list of test cases the lifecycle
// runner executes, and loads it from YAML or TOML files.
package matrix

import (
	"time"
)

// TestCase is one row of the test matrix.
type TestCase struct {
	// Model is the catalog identifier of the model, e.g. "ggerganov/whisper.cpp".
	Model string `yaml:"model" toml:"model" json:"model"`
	// HasService marks models that expose a runnable inference service.
	HasService bool `yaml:"hasService" toml:"has_service" json:"hasService"`
	// ServiceType, when set, must appear in the displayed inference server type.
	ServiceType string `yaml:"serviceType,omitempty" toml:"service_type" json:"serviceType,omitempty"`
	// Recipes are deployed against the model in this order.
	Recipes []string `yaml:"recipes,omitempty" toml:"recipes" json:"recipes,omitempty"`
	// TimeoutOverride replaces the default download timeout for this model.
	TimeoutOverride time.Duration `yaml:"timeoutOverride,omitempty" toml:"timeout_override" json:"timeoutOverride,omitempty"`
}

// Matrix is the ordered list of test cases for a run.
type Matrix struct {
	Cases []TestCase `yaml:"cases" toml:"cases" json:"cases"`
}
