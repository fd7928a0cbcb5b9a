package script

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/gamecore/game/engine"
)

func createTestGame(t *testing.T) (*engine.Engine, *engine.State) {
	t.Helper()
	rs, err := LoadFile(filepath.Join("..", "..", "..", "configs", "tictactoe.lua"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	eng, err := engine.NewEngine(rs)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	layout, err := eng.DefaultLayout()
	if err != nil {
		t.Fatalf("DefaultLayout failed: %v", err)
	}
	state, err := eng.NewGame("tictactoe", layout)
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}
	return eng, state
}

func place(actor, cell engine.EntityID) engine.Action {
	return engine.Action{Actor: actor, Kind: engine.KindPlace, Targets: []engine.EntityID{cell}}
}

func play(t *testing.T, eng *engine.Engine, s *engine.State, moves ...engine.Action) *engine.State {
	t.Helper()
	for i, a := range moves {
		next, err := eng.Apply(s, a)
		if err != nil {
			t.Fatalf("move %d (%s -> %v) failed: %v", i+1, a.Actor, a.Targets, err)
		}
		s = next
	}
	return s
}

func TestSetup(t *testing.T) {
	eng, state := createTestGame(t)

	if eng.Name() != "tictactoe" {
		t.Errorf("Expected ruleset name tictactoe, got %q", eng.Name())
	}
	if n := len(state.EntitiesOfType("cell")); n != 9 {
		t.Errorf("Expected 9 cells, got %d", n)
	}
	if c := state.Entity("c23"); c == nil || c.Int("row") != 2 || c.Int("col") != 3 {
		t.Errorf("Expected c23 at row 2 col 3, got %+v", c)
	}
	if eng.Actor(state) != "x" {
		t.Errorf("Expected x to start, got %q", eng.Actor(state))
	}
}

func TestPlace_Win(t *testing.T) {
	eng, state := createTestGame(t)

	state = play(t, eng, state,
		place("x", "c11"), place("o", "c21"),
		place("x", "c12"), place("o", "c22"),
		place("x", "c13"),
	)

	if state.Status != engine.StatusWon {
		t.Fatalf("Expected won, got %s", state.Status)
	}
	if state.Winner != "x" {
		t.Errorf("Expected x to win, got %q", state.Winner)
	}
	if ref := state.Entity("c11").Attrs["by"].Ref(); ref != "x" {
		t.Errorf("Expected c11 placed by x, got %q", ref)
	}
	if state.Turn != 5 {
		t.Errorf("Expected turn 5, got %d", state.Turn)
	}
}

func TestPlace_Draw(t *testing.T) {
	eng, state := createTestGame(t)

	state = play(t, eng, state,
		place("x", "c11"), place("o", "c12"),
		place("x", "c13"), place("o", "c22"),
		place("x", "c21"), place("o", "c23"),
		place("x", "c32"), place("o", "c31"),
		place("x", "c33"),
	)

	if state.Status != engine.StatusDrawn {
		t.Errorf("Expected drawn, got %s", state.Status)
	}
	if state.Winner != "" {
		t.Errorf("Draw must have no winner, got %q", state.Winner)
	}
}

func TestPlace_Violations(t *testing.T) {
	eng, state := createTestGame(t)
	state = play(t, eng, state, place("x", "c22"))
	before := state.Clone()

	tests := []struct {
		name       string
		action     engine.Action
		constraint string
	}{
		{"taken cell", place("o", "c22"), "cell_taken"},
		{"not a cell", place("o", "x"), "not_a_cell"},
		{"out of turn", place("x", "c11"), engine.ConstraintOutOfTurn},
		{"missing target", engine.Action{Actor: "o", Kind: engine.KindPlace}, engine.ConstraintShape},
		{"unsupported kind", engine.Action{Actor: "o", Kind: engine.KindMove}, engine.ConstraintUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Apply(state, tt.action)
			var v *engine.RuleViolation
			if !errors.As(err, &v) {
				t.Fatalf("Expected rule violation, got %v", err)
			}
			if v.Constraint != tt.constraint {
				t.Errorf("Expected %s, got %s (%s)", tt.constraint, v.Constraint, v.Detail)
			}
			if !state.Equal(before) {
				t.Error("Rejected action must not change state")
			}
		})
	}
}

func TestApply_Deterministic(t *testing.T) {
	eng, state := createTestGame(t)

	a, err := eng.Apply(state, place("x", "c11"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		b, err := eng.Apply(state, place("x", "c11"))
		if err != nil {
			t.Fatal(err)
		}
		if !a.Equal(b) {
			t.Fatal("Scripted transition is not deterministic")
		}
	}
}

const counterScript = `
return {
  name = "counter",
  schema = { counter = { n = "int" } },
  setup = function()
    return { entities = { { id = "c", type = "counter", attrs = { n = 0 } } } }
  end,
  rules = {
    update = {
      params = { by = "int" },
      effect = function(state, action)
        local c = state.entities[action.actor]
        c.attrs.n = c.attrs.n + action.params.by
      end,
    },
    pass = {
      effect = function(state, action)
        state.entities[action.actor].attrs.n = "oops"
      end,
    },
  },
}
`

func TestEffect_SchemaEnforced(t *testing.T) {
	rs, err := New(counterScript)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	eng, err := engine.NewEngine(rs)
	if err != nil {
		t.Fatal(err)
	}
	layout, _ := eng.DefaultLayout()
	state, err := eng.NewGame("counter", layout)
	if err != nil {
		t.Fatal(err)
	}

	next, err := eng.Apply(state, engine.Action{
		Actor:  "c",
		Kind:   engine.KindUpdate,
		Params: map[string]engine.Value{"by": engine.IntValue(5)},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if n := next.Entity("c").Int("n"); n != 5 {
		t.Errorf("Expected n=5, got %d", n)
	}

	_, err = eng.Apply(next, engine.Action{Actor: "c", Kind: engine.KindPass})
	if !errors.Is(err, engine.ErrRuleViolation) {
		t.Fatalf("Expected violation for wrong attribute kind, got %v", err)
	}
	if next.Entity("c").Int("n") != 5 {
		t.Error("Failed effect must not change the input state")
	}
}

const walkScript = `
return {
  name = "walk",
  schema = { box = { e = "int", a = "int", d = "int", b = "int", c = "int" } },
  setup = function()
    return {
      entities = { { id = "box", type = "box", attrs = { e = 1, a = 2, d = 3, b = 4, c = 5 } } },
      meta = { zeta = "1", alpha = "2", gamma = "3", beta = "4" },
    }
  end,
  rules = {
    pass = {
      effect = function(state, action)
        local meta, attrs = {}, {}
        for k in pairs(state.meta) do meta[#meta + 1] = k end
        for k in pairs(state.entities[action.actor].attrs) do attrs[#attrs + 1] = k end
        state.meta.walk = table.concat(meta, ",") .. "|" .. table.concat(attrs, ",")
      end,
    },
  },
}
`

func TestPairs_SortedKeys(t *testing.T) {
	rs, err := New(walkScript)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	eng, err := engine.NewEngine(rs)
	if err != nil {
		t.Fatal(err)
	}
	layout, _ := eng.DefaultLayout()
	state, err := eng.NewGame("walk", layout)
	if err != nil {
		t.Fatal(err)
	}

	expected := "alpha,beta,gamma,zeta|a,b,c,d,e"
	for i := 0; i < 25; i++ {
		next, err := eng.Apply(state, engine.Action{Actor: "box", Kind: engine.KindPass})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got := next.Meta["walk"]; got != expected {
			t.Fatalf("Expected pairs() order %q, got %q on run %d", expected, got, i+1)
		}
	}
}

func TestNew_InvalidScripts(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax error", `return {`, "failed to run script"},
		{"not a table", `return 42`, "must return a table"},
		{"no name", `return { schema = {}, setup = function() end, rules = {} }`, "must set name"},
		{"no schema", `return { name = "g", setup = function() end, rules = {} }`, "must define schema"},
		{"bad kind", `return { name = "g", schema = { p = { a = "float" } }, setup = function() end, rules = {} }`, "unknown kind"},
		{"no setup", `return { name = "g", schema = { p = {} }, rules = {} }`, "setup()"},
		{"bad turns", `return { name = "g", turns = "random", schema = { p = {} }, setup = function() end, rules = {} }`, "unknown turn policy"},
		{"abort rule", `return { name = "g", schema = { p = {} }, setup = function() end, rules = { abort = { effect = function() end } } }`, "cannot define rules"},
		{"no effect", `return { name = "g", schema = { p = {} }, setup = function() end, rules = { pass = {} } }`, "must define effect()"},
		{"no rules", `return { name = "g", schema = { p = {} }, setup = function() end, rules = {} }`, "supports no action kinds"},
		{"dofile removed", `dofile("x.lua") return {}`, "failed to run script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSandbox_NoRandomness(t *testing.T) {
	L := newSandbox()
	defer L.Close()

	for _, src := range []string{
		`return math.random(1, 6)`,
		`return os.time()`,
		`return io.read()`,
	} {
		if err := L.DoString(src); err == nil {
			t.Errorf("Expected %q to fail in the sandbox", src)
		}
	}
	if err := L.DoString(`return math.floor(2.5) + string.len("ab")`); err != nil {
		t.Errorf("Expected math and string to be available: %v", err)
	}
}
