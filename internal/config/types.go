package config

import (
	"time"
)

// Settings is the complete runner configuration.
type Settings struct {
	Bridge    BridgeSettings    `yaml:"bridge"`
	Extension ExtensionSettings `yaml:"extension"`
	Viewport  Viewport          `yaml:"viewport"`
	Timeouts  Timeouts          `yaml:"timeouts"`
	Intervals Intervals         `yaml:"intervals"`

	// CI is set when running in continuous integration.
	CI bool `yaml:"ci,omitempty"`
	// Platform is the operating system name used for platform gating.
	Platform string `yaml:"platform,omitempty"`
	// SkipModelDeletionOn lists platforms on which the model deletion phase is skipped.
	SkipModelDeletionOn []string `yaml:"skipModelDeletionOn"`
	// DeleteModels makes the model deletion phase actually delete the model.
	DeleteModels bool `yaml:"deleteModels,omitempty"`
	// Matrix is the path of the test matrix file. Empty uses the built-in matrix.
	Matrix string `yaml:"matrix,omitempty"`
}

// BridgeSettings locates the automation bridge driving the application.
type BridgeSettings struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ExtensionSettings describes the extension under test.
type ExtensionSettings struct {
	OCIImage     string `yaml:"ociImage,omitempty"`
	Preinstalled bool   `yaml:"preinstalled,omitempty"`
	// Name and Label identify the extension on the extensions page.
	Name  string `yaml:"name,omitempty"`
	Label string `yaml:"label,omitempty"`
}

// Viewport is the window size set during global setup.
type Viewport struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// Timeouts bounds every wait of the lifecycle.
type Timeouts struct {
	Runtime         time.Duration `yaml:"runtime,omitempty"`
	ExtensionActive time.Duration `yaml:"extensionActive,omitempty"`
	Download        time.Duration `yaml:"download,omitempty"`
	ServiceCreate   time.Duration `yaml:"serviceCreate,omitempty"`
	HealthCheck     time.Duration `yaml:"healthCheck,omitempty"`
	ServiceDelete   time.Duration `yaml:"serviceDelete,omitempty"`
	RecipeDeploy    time.Duration `yaml:"recipeDeploy,omitempty"`
	AppExists       time.Duration `yaml:"appExists,omitempty"`
	AppRunning      time.Duration `yaml:"appRunning,omitempty"`
	AppStopped      time.Duration `yaml:"appStopped,omitempty"`
	AppDeleted      time.Duration `yaml:"appDeleted,omitempty"`
	ModelDelete     time.Duration `yaml:"modelDelete,omitempty"`
}

// Intervals are the polling periods.
type Intervals struct {
	Poll     time.Duration `yaml:"poll,omitempty"`
	Download time.Duration `yaml:"download,omitempty"`
}
