package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"labrunner/pkg/logging"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/labrunner"
	projectConfigDir = ".labrunner"
	configFileName   = "config.yaml"
	dotEnvFileName   = ".env"
)

// Environment variables read by LoadConfig.
const (
	EnvExtensionImage        = "EXTENSION_OCI_IMAGE"
	EnvExtensionPreinstalled = "EXTENSION_PREINSTALLED"
	EnvCI                    = "CI"
	EnvBridge                = "LABRUNNER_BRIDGE"
	EnvPlatform              = "LABRUNNER_PLATFORM"
	EnvMatrix                = "LABRUNNER_MATRIX"
)

// LoadConfig loads the labrunner settings by layering defaults, user and
// project files, then the .env file and the environment.
func LoadConfig() (Settings, error) {
	settings := Default()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if settings, err = applyFile(settings, userConfigPath); err != nil {
		return Settings{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if settings, err = applyFile(settings, projectConfigPath); err != nil {
		return Settings{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	dotEnv, err := readDotEnv()
	if err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings, lookupWith(dotEnv)); err != nil {
		return Settings{}, err
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// applyFile decodes the YAML file at path over base. Keys absent from the
// file keep their base value. A missing file leaves base untouched.
func applyFile(base Settings, path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Settings{}, err
	}

	merged := base
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return Settings{}, err
	}
	logging.Debug("Config", "Applied configuration from %s", path)
	return merged, nil
}

// readDotEnv parses .env in the working directory without touching the
// process environment.
func readDotEnv() (map[string]string, error) {
	wd, err := osGetwd()
	if err != nil {
		logging.Warn("Config", "Could not determine working directory: %v", err)
		return nil, nil
	}
	path := filepath.Join(wd, dotEnvFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	logging.Debug("Config", "Loaded %d variables from %s", len(values), path)
	return values, nil
}

// lookupWith resolves a variable from the real environment first and falls
// back to the .env values.
func lookupWith(dotEnv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := osLookupEnv(key); ok {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvExtensionImage); ok && v != "" {
		s.Extension.OCIImage = v
	}
	if v, ok := lookup(EnvBridge); ok && v != "" {
		s.Bridge.Endpoint = v
	}
	if v, ok := lookup(EnvPlatform); ok && v != "" {
		s.Platform = v
	}
	if v, ok := lookup(EnvMatrix); ok && v != "" {
		s.Matrix = v
	}

	var err error
	if s.Extension.Preinstalled, err = envBool(lookup, EnvExtensionPreinstalled, s.Extension.Preinstalled); err != nil {
		return err
	}
	if s.CI, err = envBool(lookup, EnvCI, s.CI); err != nil {
		return err
	}
	return nil
}

func envBool(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid boolean %s=%q", key, v)
	}
	return b, nil
}

// Validate reports settings that would make every wait fail immediately.
func (s Settings) Validate() error {
	var errs []error
	if s.Extension.OCIImage == "" && !s.Extension.Preinstalled {
		errs = append(errs, errors.New("extension.ociImage is required unless the extension is preinstalled"))
	}
	if s.Viewport.Width <= 0 || s.Viewport.Height <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %dx%d", s.Viewport.Width, s.Viewport.Height))
	}

	durations := map[string]time.Duration{
		"timeouts.runtime":         s.Timeouts.Runtime,
		"timeouts.extensionActive": s.Timeouts.ExtensionActive,
		"timeouts.download":        s.Timeouts.Download,
		"timeouts.serviceCreate":   s.Timeouts.ServiceCreate,
		"timeouts.healthCheck":     s.Timeouts.HealthCheck,
		"timeouts.serviceDelete":   s.Timeouts.ServiceDelete,
		"timeouts.recipeDeploy":    s.Timeouts.RecipeDeploy,
		"timeouts.appExists":       s.Timeouts.AppExists,
		"timeouts.appRunning":      s.Timeouts.AppRunning,
		"timeouts.appStopped":      s.Timeouts.AppStopped,
		"timeouts.appDeleted":      s.Timeouts.AppDeleted,
		"timeouts.modelDelete":     s.Timeouts.ModelDelete,
		"intervals.poll":           s.Intervals.Poll,
		"intervals.download":       s.Intervals.Download,
	}
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if durations[k] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", k, durations[k]))
		}
	}
	return errors.Join(errs...)
}

// ModelDeletionEnabled reports whether the model deletion phase runs: only
// in CI and only on platforms not listed in SkipModelDeletionOn.
func (s Settings) ModelDeletionEnabled() bool {
	return s.CI && !slices.Contains(s.SkipModelDeletionOn, s.Platform)
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
