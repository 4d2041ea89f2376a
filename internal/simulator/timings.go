package simulator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadTimings decodes a YAML timings file over DefaultTimings. Keys absent
// from the file keep their default.
func LoadTimings(path string) (Timings, error) {
	t := DefaultTimings()
	data, err := os.ReadFile(path)
	if err != nil {
		return Timings{}, fmt.Errorf("failed to read timings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Timings{}, fmt.Errorf("failed to parse timings %s: %w", path, err)
	}
	return t, nil
}

// Scale multiplies every delay by factor. A factor of 0 makes every
// transition immediate.
func (t Timings) Scale(factor float64) Timings {
	s := func(d time.Duration) time.Duration { return time.Duration(float64(d) * factor) }
	return Timings{
		RuntimeBoot:         s(t.RuntimeBoot),
		ExtensionActivation: s(t.ExtensionActivation),
		ViewLoad:            s(t.ViewLoad),
		Download:            s(t.Download),
		ModelDelete:         s(t.ModelDelete),
		ServiceStart:        s(t.ServiceStart),
		Deployment:          s(t.Deployment),
		AppStart:            s(t.AppStart),
		AppStop:             s(t.AppStop),
		AppDelete:           s(t.AppDelete),
	}
}
