package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/gamecore/game/rules/roadtrip"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Rules engines a definition can select
const (
	RulesRoadTrip = "roadtrip"
	RulesScript   = "script"
)

// extensions lists the definition file formats in lookup order
var extensions = []string{".json", ".yaml", ".yml"}

// Definition describes a playable game: which ruleset to build and how
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Rules       string `json:"rules" yaml:"rules"`
	// Script is a Lua ruleset path, relative to the config directory
	Script        string           `json:"script,omitempty" yaml:"script,omitempty"`
	QueueCapacity int              `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`
	RoadTrip      *roadtrip.Config `json:"roadtrip,omitempty" yaml:"roadtrip,omitempty"`
}

// Validate checks that the definition names a usable ruleset
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	if d.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", d.QueueCapacity)
	}
	switch d.Rules {
	case RulesRoadTrip:
		if d.RoadTrip == nil {
			return fmt.Errorf("roadtrip rules require a roadtrip section")
		}
		if err := roadtrip.ValidateConfig(d.RoadTrip); err != nil {
			return err
		}
	case RulesScript:
		if d.Script == "" {
			return fmt.Errorf("script rules require a script path")
		}
	default:
		return fmt.Errorf("unknown rules %q", d.Rules)
	}
	return nil
}

// Info summarizes a definition for listings
type Info struct {
	Filename    string `json:"filename"`
	ID          string `json:"id"` // identifier to use for session creation
	Name        string `json:"name"`
	Description string `json:"description"`
	Rules       string `json:"rules"`
}

// Manager handles game definition loading and caching
type Manager struct {
	configDir         string
	defaultDefinition *Definition
	definitions       map[string]*Definition
	mu                sync.RWMutex
}

// NewManager creates a new definition manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir:   configDir,
		definitions: make(map[string]*Definition),
	}

	if err := m.loadDefaultDefinition(); err != nil {
		return nil, fmt.Errorf("failed to load default definition: %w", err)
	}

	return m, nil
}

// Dir returns the directory definitions are read from
func (m *Manager) Dir() string {
	return m.configDir
}

// LoadDefinition loads a definition by name, with or without extension
func (m *Manager) LoadDefinition(name string) (*Definition, error) {
	id := definitionID(name)

	m.mu.RLock()
	if def, exists := m.definitions[id]; exists {
		m.mu.RUnlock()
		return def, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if def, exists := m.definitions[id]; exists {
		return def, nil
	}

	def, err := m.readDefinition(name)
	if err != nil {
		return nil, err
	}
	m.definitions[id] = def
	return def, nil
}

func (m *Manager) readDefinition(name string) (*Definition, error) {
	candidates := []string{name}
	if !IsDefinitionFile(name) {
		candidates = candidates[:0]
		for _, ext := range extensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, filename := range candidates {
		path := filepath.Join(m.configDir, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var def Definition
		if filepath.Ext(filename) == ".json" {
			err = json.Unmarshal(data, &def)
		} else {
			err = yaml.Unmarshal(data, &def)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", filename, err)
		}

		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, filename, err)
		}
		return &def, nil
	}
	return nil, ErrConfigNotFound
}

// ListDefinitions returns information about all valid definitions, sorted by id
func (m *Manager) ListDefinitions() ([]*Info, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var infos []*Info
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}

		id := definitionID(entry.Name())
		if seen[id] {
			continue
		}

		def, err := m.LoadDefinition(entry.Name())
		if err != nil {
			// Skip invalid definitions
			continue
		}
		seen[id] = true

		infos = append(infos, &Info{
			Filename:    entry.Name(),
			ID:          id,
			Name:        def.Name,
			Description: def.Description,
			Rules:       def.Rules,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// GetDefault returns the default definition
func (m *Manager) GetDefault() *Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultDefinition
}

// SetDefault sets the default definition by name
func (m *Manager) SetDefault(name string) error {
	def, err := m.LoadDefinition(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultDefinition = def
	return nil
}

// RefreshCache drops cached definitions and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.definitions = make(map[string]*Definition)
	m.mu.Unlock()

	return m.loadDefaultDefinition()
}

// Count returns the number of cached definitions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.definitions)
}

// loadDefaultDefinition picks classic, else the first valid definition, else
// a built-in road trip
func (m *Manager) loadDefaultDefinition() error {
	def, err := m.LoadDefinition("classic")
	if err != nil {
		infos, listErr := m.ListDefinitions()
		if listErr != nil || len(infos) == 0 {
			def = m.createMinimalDefinition()
		} else if def, err = m.LoadDefinition(infos[0].Filename); err != nil {
			def = m.createMinimalDefinition()
		}
	}

	m.mu.Lock()
	m.defaultDefinition = def
	m.mu.Unlock()
	return nil
}

// SaveDefinition validates def and writes it to disk as JSON
func (m *Manager) SaveDefinition(name string, def *Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	id := definitionID(name)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: bad definition name %q", ErrInvalidConfig, name)
	}
	path := filepath.Join(m.configDir, id+".json")

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.definitions[id] = def
	m.mu.Unlock()

	return nil
}

// createMinimalDefinition creates a valid built-in definition
func (m *Manager) createMinimalDefinition() *Definition {
	rt := roadtrip.DefaultConfig()
	return &Definition{
		Name:        "default",
		Description: "Built-in road trip",
		Rules:       RulesRoadTrip,
		RoadTrip:    rt,
	}
}

// IsDefinitionFile reports whether name has a definition file extension
func IsDefinitionFile(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func definitionID(name string) string {
	if IsDefinitionFile(name) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
