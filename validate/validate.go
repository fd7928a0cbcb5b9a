// Package validate checks the game definitions in a config directory. For
// every definition file it verifies:
//   - the file parses and the definition names a known ruleset
//   - the ruleset compiles (road trip boards and Lua scripts alike)
//   - road trip boards: every park is reachable from a home over passable cells
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/rules"
	"github.com/wricardo/gamecore/game/rules/roadtrip"
)

// ValidationResult captures the outcome of validating a single file.
// Errors holds what is wrong with it; Info holds a short summary of a valid one.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
	Info   []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Dir validates every definition file in dir, sorted by file name
func Dir(dir string) ([]ValidationResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && config.IsDefinitionFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	manager, err := config.NewManager(dir)
	if err != nil {
		return nil, err
	}

	results := make([]ValidationResult, 0, len(names))
	for _, name := range names {
		results = append(results, File(manager, name))
	}
	return results, nil
}

// File loads the named definition through manager and validates it
func File(manager *config.Manager, name string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(name),
		Valid: true,
	}

	def, err := manager.LoadDefinition(name)
	if err != nil {
		result.fail("Invalid definition: %v", err)
		return result
	}

	rs, err := rules.Build(def, manager.Dir())
	if err != nil {
		result.fail("Ruleset does not build: %v", err)
		return result
	}

	if def.RoadTrip != nil {
		connectivity := Connectivity(def.RoadTrip.Layout)
		if !connectivity.Valid {
			result.Valid = false
			result.Errors = append(result.Errors, connectivity.Errors...)
		}
		result.Info = append(result.Info, connectivity.Info...)
	}

	if result.Valid {
		result.Info = append([]string{
			fmt.Sprintf("✓ Name: %s", def.Name),
			fmt.Sprintf("✓ Rules: %s (%s)", def.Rules, rs.Name),
			fmt.Sprintf("✓ Actions: %s", strings.Join(supportedKinds(rs), ", ")),
			fmt.Sprintf("✓ End conditions: %d win, %d loss, %d draw", len(rs.End.Win), len(rs.End.Loss), len(rs.End.Draw)),
		}, result.Info...)
		if rt := def.RoadTrip; rt != nil {
			result.Info = append(result.Info,
				fmt.Sprintf("✓ Grid: %dx%d", len(rt.Layout), rt.GridSize),
				fmt.Sprintf("✓ Battery: %d/%d", rt.StartingBattery, rt.MaxBattery),
			)
		}
	}

	return result
}

func supportedKinds(rs *engine.Ruleset) []string {
	var kinds []string
	for _, kind := range engine.Kinds {
		if r, ok := rs.Rules.For(kind); ok && r.Supported() {
			kinds = append(kinds, string(kind))
		}
	}
	return kinds
}

// Connectivity ensures all parks are reachable from the first home using
// 4-directional movement over passable cells.
func Connectivity(layout []string) ValidationResult {
	result := ValidationResult{Valid: true}

	if len(layout) == 0 {
		result.fail("Cannot validate connectivity: empty layout")
		return result
	}

	grid, err := roadtrip.ParseGrid(layout)
	if err != nil {
		result.fail("Cannot validate connectivity: %v", err)
		return result
	}

	homes := grid.Find(roadtrip.Home)
	parks := grid.Find(roadtrip.Park)
	if len(homes) == 0 {
		result.fail("No home positions found for connectivity test")
		return result
	}
	if len(parks) == 0 {
		result.fail("No parks found for connectivity test")
		return result
	}

	// Flood fill from the first home
	visited := map[roadtrip.Position]bool{homes[0]: true}
	queue := []roadtrip.Position{homes[0]}
	steps := []roadtrip.Position{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, step := range steps {
			next := roadtrip.Position{X: current.X + step.X, Y: current.Y + step.Y}
			if !visited[next] && grid.CanMoveTo(next) {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []roadtrip.Position
	for _, park := range parks {
		if !visited[park] {
			unreachable = append(unreachable, park)
		}
	}

	if len(unreachable) > 0 {
		result.fail("Connectivity failure: %d/%d parks unreachable from home", len(unreachable), len(parks))
		for _, park := range unreachable {
			result.Errors = append(result.Errors, fmt.Sprintf("Unreachable: Park at (%d,%d)", park.X, park.Y))
		}
	} else {
		result.Info = append(result.Info, fmt.Sprintf("✓ Connectivity: All %d parks reachable from home", len(parks)))
	}

	return result
}
