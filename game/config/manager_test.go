package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/wricardo/gamecore/game/rules/roadtrip"
)

func createTestConfigDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	return dir
}

func createValidDefinition() *Definition {
	return &Definition{
		Name:        "Test Config",
		Description: "Test configuration",
		Rules:       RulesRoadTrip,
		RoadTrip: &roadtrip.Config{
			GridSize:        5,
			MaxBattery:      10,
			StartingBattery: 8,
			Layout: []string{
				"BBBBB",
				"BRHPB",
				"BRRSB",
				"BPPPB",
				"BBBBB",
			},
			Legend:   roadtrip.DefaultLegend(),
			Messages: roadtrip.DefaultMessages(),
		},
	}
}

func writeDefinitionFile(t *testing.T, dir, name string, def *Definition) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal definition: %v", err)
	}

	filename := name
	if filepath.Ext(filename) == "" {
		filename = name + ".json"
	}

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		t.Fatalf("Failed to write definition file: %v", err)
	}
}

const yamlScriptDefinition = `name: Tic Tac Toe
description: Three in a row
rules: script
script: tictactoe.lua
queue_capacity: 16
`

const yamlRoadTripDefinition = `name: YAML Trip
description: Road trip from yaml
rules: roadtrip
roadtrip:
  grid_size: 5
  max_battery: 10
  starting_battery: 8
  cars: 2
  layout:
    - BBBBB
    - BRHPB
    - BRRSB
    - BPPPB
    - BBBBB
  legend:
    R: road
    H: home
    P: park
    S: supercharger
    W: water
    B: building
  messages:
    welcome: Hi
    home_charge: Home
    supercharger_charge: Super
    park_visited: "Park %d"
    park_already_visited: Again
    victory: "Won %d"
    out_of_battery: Empty
    stranded: Stranded
    cant_move: Blocked
    battery_status: "Battery %d/%d"
    hit_wall: Crash
`

func TestNewManager(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		def := createValidDefinition()
		def.Name = "Classic"
		writeDefinitionFile(t, dir, "classic", def)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if manager.GetDefault().Name != "Classic" {
			t.Errorf("Expected classic to be the default, got %s", manager.GetDefault().Name)
		}
		if manager.Dir() != dir {
			t.Errorf("Expected dir %s, got %s", dir, manager.Dir())
		}
	})

	t.Run("non-existent directory", func(t *testing.T) {
		_, err := NewManager("/non/existent/path")
		if err == nil {
			t.Error("Expected error for non-existent directory")
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("NewManager should succeed even without definitions, got error: %v", err)
		}

		def := manager.GetDefault()
		if def == nil {
			t.Fatal("Expected default definition to be available")
		}
		if err := def.Validate(); err != nil {
			t.Errorf("Built-in default must be valid: %v", err)
		}
	})

	t.Run("first valid definition without classic", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		os.WriteFile(filepath.Join(dir, "aaa.json"), []byte(`{"name": ""}`), 0644)
		def := createValidDefinition()
		def.Name = "Beta"
		writeDefinitionFile(t, dir, "beta", def)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if manager.GetDefault().Name != "Beta" {
			t.Errorf("Expected Beta as default, got %s", manager.GetDefault().Name)
		}
	})
}

func TestManager_LoadDefinition(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	writeDefinitionFile(t, dir, "classic", createValidDefinition())

	easy := createValidDefinition()
	easy.Name = "Easy"
	easy.RoadTrip.MaxBattery = 20
	writeDefinitionFile(t, dir, "easy", easy)

	os.WriteFile(filepath.Join(dir, "ttt.yaml"), []byte(yamlScriptDefinition), 0644)
	os.WriteFile(filepath.Join(dir, "trip.yml"), []byte(yamlRoadTripDefinition), 0644)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Run("load existing definition", func(t *testing.T) {
		def, err := manager.LoadDefinition("easy")
		if err != nil {
			t.Fatalf("Failed to load definition: %v", err)
		}
		if def.Name != "Easy" {
			t.Errorf("Expected name 'Easy', got '%s'", def.Name)
		}
		if def.RoadTrip.MaxBattery != 20 {
			t.Errorf("Expected max battery 20, got %d", def.RoadTrip.MaxBattery)
		}
	})

	t.Run("load with extension", func(t *testing.T) {
		def, err := manager.LoadDefinition("easy.json")
		if err != nil {
			t.Fatalf("Failed to load definition with extension: %v", err)
		}
		if def.Name != "Easy" {
			t.Errorf("Expected name 'Easy', got '%s'", def.Name)
		}
	})

	t.Run("load yaml script definition", func(t *testing.T) {
		def, err := manager.LoadDefinition("ttt")
		if err != nil {
			t.Fatalf("Failed to load yaml definition: %v", err)
		}
		if def.Rules != RulesScript || def.Script != "tictactoe.lua" {
			t.Errorf("Expected script rules with tictactoe.lua, got %s %s", def.Rules, def.Script)
		}
		if def.QueueCapacity != 16 {
			t.Errorf("Expected queue capacity 16, got %d", def.QueueCapacity)
		}
	})

	t.Run("load yml road trip definition", func(t *testing.T) {
		def, err := manager.LoadDefinition("trip")
		if err != nil {
			t.Fatalf("Failed to load yml definition: %v", err)
		}
		if def.RoadTrip == nil || def.RoadTrip.Cars != 2 {
			t.Fatalf("Expected road trip with 2 cars, got %+v", def.RoadTrip)
		}
		if def.RoadTrip.Messages.ParkVisited != "Park %d" {
			t.Errorf("Expected yaml messages to load, got %q", def.RoadTrip.Messages.ParkVisited)
		}
	})

	t.Run("load from cache", func(t *testing.T) {
		def1, _ := manager.LoadDefinition("easy")
		def2, err := manager.LoadDefinition("easy.json")
		if err != nil {
			t.Fatalf("Failed to load definition from cache: %v", err)
		}
		if def1 != def2 {
			t.Error("Expected definition to be loaded from cache")
		}
	})

	t.Run("load non-existent definition", func(t *testing.T) {
		_, err := manager.LoadDefinition("non-existent")
		if err != ErrConfigNotFound {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("load invalid definition", func(t *testing.T) {
		os.WriteFile(filepath.Join(dir, "invalid.json"), []byte(`{"name": ""}`), 0644)

		_, err := manager.LoadDefinition("invalid")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("load malformed JSON", func(t *testing.T) {
		os.WriteFile(filepath.Join(dir, "malformed.json"), []byte(`{"name": "Malformed", invalid json}`), 0644)

		_, err := manager.LoadDefinition("malformed")
		if err == nil {
			t.Error("Expected error for malformed JSON")
		}
	})
}

func TestManager_ListDefinitions(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	for _, name := range []string{"classic", "easy", "medium", "hard"} {
		def := createValidDefinition()
		def.Name = name
		writeDefinitionFile(t, dir, name, def)
	}
	os.WriteFile(filepath.Join(dir, "ttt.yaml"), []byte(yamlScriptDefinition), 0644)

	// Ignored: not a definition, and invalid
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("readme"), 0644)
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"rules": "chess"}`), 0644)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	infos, err := manager.ListDefinitions()
	if err != nil {
		t.Fatalf("Failed to list definitions: %v", err)
	}
	if len(infos) != 5 {
		t.Fatalf("Expected 5 definitions, got %d", len(infos))
	}

	want := []string{"classic", "easy", "hard", "medium", "ttt"}
	for i, info := range infos {
		if info.ID != want[i] {
			t.Errorf("Expected definition %d to be %s, got %s", i, want[i], info.ID)
		}
	}
	if infos[4].Rules != RulesScript || infos[4].Filename != "ttt.yaml" {
		t.Errorf("Expected ttt.yaml script entry, got %+v", infos[4])
	}
}

func TestManager_SetDefaultAndRefresh(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	def := createValidDefinition()
	def.Name = "Changeable"
	def.RoadTrip.MaxBattery = 10
	writeDefinitionFile(t, dir, "classic", createValidDefinition())
	writeDefinitionFile(t, dir, "changeable", def)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := manager.SetDefault("changeable"); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}
	if manager.GetDefault().Name != "Changeable" {
		t.Errorf("Expected Changeable default, got %s", manager.GetDefault().Name)
	}
	if err := manager.SetDefault("missing"); err != ErrConfigNotFound {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	def.RoadTrip.MaxBattery = 20
	writeDefinitionFile(t, dir, "changeable", def)

	if err := manager.RefreshCache(); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	reloaded, _ := manager.LoadDefinition("changeable")
	if reloaded.RoadTrip.MaxBattery != 20 {
		t.Errorf("Expected reloaded max battery 20, got %d", reloaded.RoadTrip.MaxBattery)
	}
	if manager.GetDefault().Name != "Test Config" {
		t.Errorf("Expected refresh to restore classic as default, got %s", manager.GetDefault().Name)
	}
}

func TestManager_SaveDefinition(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	def := createValidDefinition()
	def.Name = "Saved"
	if err := manager.SaveDefinition("saved", def); err != nil {
		t.Fatalf("SaveDefinition failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "saved.json")); err != nil {
		t.Fatalf("Expected saved.json on disk: %v", err)
	}

	if err := manager.RefreshCache(); err != nil {
		t.Fatal(err)
	}
	loaded, err := manager.LoadDefinition("saved")
	if err != nil {
		t.Fatalf("Failed to load saved definition: %v", err)
	}
	if loaded.Name != "Saved" {
		t.Errorf("Expected name Saved, got %s", loaded.Name)
	}

	bad := createValidDefinition()
	bad.RoadTrip.GridSize = 2
	if err := manager.SaveDefinition("bad", bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if err := manager.SaveDefinition("../escape", def); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for path name, got %v", err)
	}
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(d *Definition)
		wantErr bool
	}{
		{"valid road trip", func(d *Definition) {}, false},
		{"missing name", func(d *Definition) { d.Name = "" }, true},
		{"missing description", func(d *Definition) { d.Description = "" }, true},
		{"unknown rules", func(d *Definition) { d.Rules = "chess" }, true},
		{"negative queue", func(d *Definition) { d.QueueCapacity = -1 }, true},
		{"missing road trip", func(d *Definition) { d.RoadTrip = nil }, true},
		{"invalid grid size", func(d *Definition) { d.RoadTrip.GridSize = 2 }, true},
		{"no parks", func(d *Definition) {
			d.RoadTrip.Layout = []string{"BBBBB", "BRHBB", "BRRSB", "BRRRB", "BBBBB"}
		}, true},
		{"script without path", func(d *Definition) { d.Rules = RulesScript; d.RoadTrip = nil }, true},
		{"script", func(d *Definition) { d.Rules = RulesScript; d.Script = "x.lua"; d.RoadTrip = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := createValidDefinition()
			tt.modify(def)
			err := def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	writeDefinitionFile(t, dir, "classic", createValidDefinition())
	for i := 1; i <= 5; i++ {
		def := createValidDefinition()
		def.Name = "Config" + string(rune('0'+i))
		writeDefinitionFile(t, dir, "config"+string(rune('0'+i)), def)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := "config" + string(rune('0'+((id%5)+1)))
			if _, err := manager.LoadDefinition(name); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error during concurrent access: %v", err)
	}

	if manager.Count() != 6 {
		t.Errorf("Expected 6 definitions in cache, got %d", manager.Count())
	}
}
