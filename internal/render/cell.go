// Package render formats running recipe applications for terminal output.
package render

import (
	"fmt"
	"strings"

	"labrunner/internal/lab"

	"github.com/charmbracelet/lipgloss"
)

var (
	nameStyle = lipgloss.NewStyle().Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}).
			Padding(0, 1)
)

// PortsBadge formats the ports an application exposes: nothing for no
// ports, "PORT n" for one and "PORTS n, m" for several.
func PortsBadge(ports []int) string {
	switch len(ports) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("PORT %d", ports[0])
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprint(p)
	}
	return "PORTS " + strings.Join(parts, ", ")
}

// RecipeName resolves a recipe ID to its display name, falling back to the
// ID when the catalog does not list it.
func RecipeName(id string, catalog []lab.Recipe) string {
	for _, r := range catalog {
		if r.ID == id {
			return r.Name
		}
	}
	return id
}

// Cell is the name column of the running applications table.
type Cell struct {
	Name  string
	Badge string
}

// AppNameCell builds the name cell for app using catalog for the lookup.
func AppNameCell(app lab.AppInfo, catalog []lab.Recipe) Cell {
	return Cell{
		Name:  RecipeName(app.RecipeID, catalog),
		Badge: PortsBadge(app.AppPorts),
	}
}

// String returns the cell without styling.
func (c Cell) String() string {
	if c.Badge == "" {
		return c.Name
	}
	return c.Name + " " + c.Badge
}

// View returns the styled cell.
func (c Cell) View() string {
	if c.Badge == "" {
		return nameStyle.Render(c.Name)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, nameStyle.Render(c.Name), " ", badgeStyle.Render(c.Badge))
}
