// Package skills bundles optional tool sets that can be enabled per
// deployment. A skill is just a named registration hook; enabling one
// adds its tools to the shared registry before the agent loop starts.
package skills

import (
	"log/slog"
	"strings"

	"github.com/LoomClaw/LoomClaw/internal/tools"
)

// Skill describes one registrable tool bundle.
type Skill struct {
	Name        string
	Description string
	Register    func(reg *tools.Registry) error
}

// Builtin returns the skill catalog shipped with the binary. Workspace
// is the directory used by skills that persist files.
func Builtin(workspace string) []Skill {
	return []Skill{
		{
			Name:        "datetime",
			Description: "Tells the current date and time, with timezone support.",
			Register: func(reg *tools.Registry) error {
				reg.Register(&CurrentTimeTool{})
				return nil
			},
		},
		{
			Name:        "notes",
			Description: "Saves and recalls short notes in the workspace.",
			Register: func(reg *tools.Registry) error {
				reg.Register(&SaveNoteTool{Workspace: workspace})
				reg.Register(&ReadNotesTool{Workspace: workspace})
				return nil
			},
		},
	}
}

// LoadAll registers the enabled skills from the catalog. An empty
// enabled list activates the whole catalog. A failing skill is logged
// and skipped so the others still load. Returns the number of skills
// registered.
func LoadAll(enabled []string, catalog []Skill, reg *tools.Registry) int {
	want := map[string]bool{}
	for _, name := range enabled {
		if n := strings.TrimSpace(strings.ToLower(name)); n != "" {
			want[n] = true
		}
	}

	loaded := 0
	for _, skill := range catalog {
		if len(want) > 0 && !want[strings.ToLower(skill.Name)] {
			continue
		}
		if skill.Register == nil {
			continue
		}
		if err := skill.Register(reg); err != nil {
			slog.Warn("Skill failed to load", "skill", skill.Name, "error", err)
			continue
		}
		slog.Debug("Skill loaded", "skill", skill.Name)
		loaded++
	}
	return loaded
}
