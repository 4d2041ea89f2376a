package matrix

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultMatrix []byte

// Default returns the built-in matrix.
func Default() (Matrix, error) {
	return parseYAML(defaultMatrix)
}

// Load reads a matrix from a .yaml, .yml or .toml file and validates it.
func Load(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("failed to read matrix %s: %w", path, err)
	}

	var m Matrix
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = parseYAML(data)
	case ".toml":
		m, err = parseTOML(data)
	default:
		return Matrix{}, fmt.Errorf("unsupported matrix format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	if err != nil {
		return Matrix{}, fmt.Errorf("failed to parse matrix %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return Matrix{}, fmt.Errorf("invalid matrix %s: %w", path, err)
	}
	return m, nil
}

// LoadOrDefault loads path, or the built-in matrix when path is empty.
func LoadOrDefault(path string) (Matrix, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

func parseYAML(data []byte) (Matrix, error) {
	var m Matrix
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

func parseTOML(data []byte) (Matrix, error) {
	var m Matrix
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return Matrix{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Matrix{}, fmt.Errorf("unknown keys: %v", undecoded)
	}
	return m, nil
}

// Validate checks the invariants of every case.
func (m Matrix) Validate() error {
	if len(m.Cases) == 0 {
		return errors.New("matrix has no cases")
	}

	seen := make(map[string]bool, len(m.Cases))
	var errs []error
	for i, tc := range m.Cases {
		if err := tc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("case %d: %w", i, err))
			continue
		}
		if seen[tc.Model] {
			errs = append(errs, fmt.Errorf("case %d: duplicate model %q", i, tc.Model))
		}
		seen[tc.Model] = true
	}
	return errors.Join(errs...)
}

// Validate checks a single case.
func (tc TestCase) Validate() error {
	if strings.TrimSpace(tc.Model) == "" {
		return errors.New("model is required")
	}
	if tc.TimeoutOverride < 0 {
		return fmt.Errorf("model %q: timeoutOverride must not be negative", tc.Model)
	}
	for j, r := range tc.Recipes {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("model %q: recipe %d has an empty name", tc.Model, j)
		}
	}
	if tc.ServiceType != "" && !tc.HasService {
		return fmt.Errorf("model %q: serviceType set but hasService is false", tc.Model)
	}
	return nil
}

// Filter keeps the cases whose model is listed, preserving matrix order.
// An empty list keeps every case.
func (m Matrix) Filter(models []string) Matrix {
	if len(models) == 0 {
		return m
	}
	want := make(map[string]bool, len(models))
	for _, name := range models {
		want[name] = true
	}

	var out Matrix
	for _, tc := range m.Cases {
		if want[tc.Model] {
			out.Cases = append(out.Cases, tc)
		}
	}
	return out
}

// Models returns the model identifiers in matrix order.
func (m Matrix) Models() []string {
	names := make([]string, 0, len(m.Cases))
	for _, tc := range m.Cases {
		names = append(names, tc.Model)
	}
	return names
}
