package simulator

import (
	_ "embed"
	"fmt"

	"labrunner/internal/lab"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Model is one catalog entry.
type Model struct {
	Name string `yaml:"name"`
	// Backend is the inference server type, or "none" when the model
	// cannot be served.
	Backend string `yaml:"backend"`
}

// Servable reports whether an inference service can be created for m.
func (m Model) Servable() bool {
	return m.Backend != "" && m.Backend != "none"
}

// Recipe is a sample application definition.
type Recipe struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Models []string `yaml:"models"`
	Ports  []int    `yaml:"ports"`
}

// Catalog lists the models and recipes known to the simulated lab.
type Catalog struct {
	Models  []Model  `yaml:"models"`
	Recipes []Recipe `yaml:"recipes"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse embedded catalog: %w", err)
	}
	return c, nil
}

// Model looks a model up by its display name.
func (c Catalog) Model(name string) (Model, error) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, &lab.NotFoundError{Kind: "model", Name: name}
}

// RecipeByName looks a recipe up by its display name.
func (c Catalog) RecipeByName(name string) (Recipe, error) {
	for _, r := range c.Recipes {
		if r.Name == name {
			return r, nil
		}
	}
	return Recipe{}, &lab.NotFoundError{Kind: "recipe", Name: name}
}

// RecipeByID looks a recipe up by its identifier.
func (c Catalog) RecipeByID(id string) (Recipe, error) {
	for _, r := range c.Recipes {
		if r.ID == id {
			return r, nil
		}
	}
	return Recipe{}, &lab.NotFoundError{Kind: "recipe", Name: id}
}

// LabRecipes returns the recipes as the driver contract describes them.
func (c Catalog) LabRecipes() []lab.Recipe {
	out := make([]lab.Recipe, 0, len(c.Recipes))
	for _, r := range c.Recipes {
		out = append(out, lab.Recipe{ID: r.ID, Name: r.Name})
	}
	return out
}
