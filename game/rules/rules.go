// Package rules builds the ruleset a game definition selects.
package rules

import (
	"fmt"
	"path/filepath"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/rules/roadtrip"
	"github.com/wricardo/gamecore/game/rules/script"
)

// Build compiles def into a ruleset. Script paths resolve against baseDir.
func Build(def *config.Definition, baseDir string) (*engine.Ruleset, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", config.ErrInvalidConfig)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	switch def.Rules {
	case config.RulesRoadTrip:
		return roadtrip.New(def.Name, def.RoadTrip)
	case config.RulesScript:
		path := def.Script
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return script.LoadFile(path)
	}
	return nil, fmt.Errorf("%w: unknown rules %q", config.ErrInvalidConfig, def.Rules)
}

// NewEngine builds def and wraps it in an engine
func NewEngine(def *config.Definition, baseDir string) (*engine.Engine, error) {
	rs, err := Build(def, baseDir)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(rs)
}
