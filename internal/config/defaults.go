package config

import (
	"runtime"
	"time"
)

const (
	// DefaultExtensionImage is installed unless EXTENSION_OCI_IMAGE says otherwise.
	DefaultExtensionImage = "ghcr.io/containers/podman-desktop-extension-ai-lab:v1.6.0"
	DefaultExtensionName  = "ai-lab"
	DefaultExtensionLabel = "Podman AI Lab"
)

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Extension: ExtensionSettings{
			OCIImage: DefaultExtensionImage,
			Name:     DefaultExtensionName,
			Label:    DefaultExtensionLabel,
		},
		Viewport: Viewport{Width: 1280, Height: 900},
		Timeouts: Timeouts{
			Runtime:         60 * time.Second,
			ExtensionActive: 30 * time.Second,
			Download:        300 * time.Second,
			ServiceCreate:   310 * time.Second,
			HealthCheck:     30 * time.Second,
			ServiceDelete:   120 * time.Second,
			RecipeDeploy:    60 * time.Second,
			AppExists:       10 * time.Second,
			AppRunning:      60 * time.Second,
			AppStopped:      60 * time.Second,
			AppDeleted:      60 * time.Second,
			ModelDelete:     60 * time.Second,
		},
		Intervals: Intervals{
			Poll:     time.Second,
			Download: 5 * time.Second,
		},
		Platform:            runtime.GOOS,
		SkipModelDeletionOn: []string{"linux"},
	}
}
