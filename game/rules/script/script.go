// Package script builds rulesets from Lua scripts.
//
// A script returns a table describing the game:
//
//	return {
//	  name = "tictactoe",
//	  turns = "round_robin", -- or "free_for_all"
//	  schema = { player = { mark = "string" }, cell = { mark = "string" } },
//	  setup = function() return { entities = {...}, order = {...}, meta = {...} } end,
//	  rules = {
//	    place = {
//	      targets = 1, -- or -1 for any
//	      params = {},
//	      legal = function(state, action) return nil end, -- or constraint, detail
//	      effect = function(state, action) end, -- mutates state in place
//	    },
//	  },
//	  win = { function(state) return matched, winner end },
//	  loss = {},
//	  draw = {},
//	}
//
// Only the base, table, string and math libraries are available, without
// file loading or random numbers, so scripted rules stay deterministic.
package script

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/wricardo/gamecore/game/engine"
)

// CallTimeout bounds a single call into a script
const CallTimeout = time.Second

// runtime serializes access to one Lua interpreter
type runtime struct {
	mu     sync.Mutex
	L      *lua.LState
	schema engine.Schema
}

// LoadFile reads and compiles a ruleset script from path
func LoadFile(path string) (*engine.Ruleset, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	rs, err := New(string(src))
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return rs, nil
}

// New compiles a ruleset script
func New(source string) (*engine.Ruleset, error) {
	L := newSandbox()
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run script: %w", err)
	}
	def, ok := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script must return a table")
	}

	rs, err := build(L, def)
	if err != nil {
		L.Close()
		return nil, err
	}
	return rs, nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	if math, ok := L.GetGlobal("math").(*lua.LTable); ok {
		math.RawSetString("random", lua.LNil)
		math.RawSetString("randomseed", lua.LNil)
	}
	return L
}

func build(L *lua.LState, def *lua.LTable) (*engine.Ruleset, error) {
	name := lua.LVAsString(def.RawGetString("name"))
	if name == "" {
		return nil, fmt.Errorf("script must set name")
	}

	schema, err := readSchema(def.RawGetString("schema"))
	if err != nil {
		return nil, err
	}
	rt := &runtime{L: L, schema: schema}

	rs := &engine.Ruleset{Name: name, Schema: schema}

	switch turns := lua.LVAsString(def.RawGetString("turns")); turns {
	case "", "round_robin":
		rs.Turns = engine.RoundRobin{}
	case "free_for_all":
		rs.Turns = engine.FreeForAll{}
	default:
		return nil, fmt.Errorf("unknown turn policy %q", turns)
	}

	setup, ok := def.RawGetString("setup").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("script must define setup()")
	}
	rs.Setup = func() (engine.Layout, error) { return rt.setup(setup) }

	rules, _ := def.RawGetString("rules").(*lua.LTable)
	if rules == nil {
		return nil, fmt.Errorf("script must define rules")
	}
	var ruleErr error
	rules.ForEach(func(k, v lua.LValue) {
		if ruleErr != nil {
			return
		}
		kind := engine.ActionKind(lua.LVAsString(k))
		tbl, ok := v.(*lua.LTable)
		if !ok {
			ruleErr = fmt.Errorf("rule %q must be a table", kind)
			return
		}
		rule, err := rt.rule(kind, tbl)
		if err != nil {
			ruleErr = err
			return
		}
		switch kind {
		case engine.KindMove:
			rs.Rules.Move = rule
		case engine.KindPlace:
			rs.Rules.Place = rule
		case engine.KindRemove:
			rs.Rules.Remove = rule
		case engine.KindUpdate:
			rs.Rules.Update = rule
		case engine.KindPass:
			rs.Rules.Pass = rule
		default:
			ruleErr = fmt.Errorf("scripts cannot define rules for %q", kind)
		}
	})
	if ruleErr != nil {
		return nil, ruleErr
	}

	for _, group := range []struct {
		key string
		dst *[]engine.Condition
	}{
		{"win", &rs.End.Win},
		{"loss", &rs.End.Loss},
		{"draw", &rs.End.Draw},
	} {
		conds, err := rt.conditions(group.key, def.RawGetString(group.key))
		if err != nil {
			return nil, err
		}
		*group.dst = conds
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func readSchema(v lua.LValue) (engine.Schema, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("script must define schema")
	}
	schema := engine.Schema{}
	var err error
	tbl.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		typ := engine.EntityType(lua.LVAsString(k))
		fields, ok := v.(*lua.LTable)
		if !ok {
			err = fmt.Errorf("schema for %q must be a table", typ)
			return
		}
		schema[typ] = map[string]engine.ValueKind{}
		fields.ForEach(func(fk, fv lua.LValue) {
			kind := engine.ValueKind(lua.LVAsString(fv))
			if !kind.Valid() {
				err = fmt.Errorf("schema %s.%s has unknown kind %q", typ, lua.LVAsString(fk), kind)
				return
			}
			schema[typ][lua.LVAsString(fk)] = kind
		})
	})
	return schema, err
}

func (rt *runtime) rule(kind engine.ActionKind, tbl *lua.LTable) (engine.Rule, error) {
	var rule engine.Rule

	switch t := tbl.RawGetString("targets").(type) {
	case lua.LNumber:
		rule.Shape.Targets = int(t)
	case *lua.LNilType:
		rule.Shape.Targets = 0
	default:
		return rule, fmt.Errorf("rule %q: targets must be a number", kind)
	}

	if params, ok := tbl.RawGetString("params").(*lua.LTable); ok {
		rule.Shape.Params = map[string]engine.ValueKind{}
		var err error
		params.ForEach(func(k, v lua.LValue) {
			pk := engine.ValueKind(lua.LVAsString(v))
			if !pk.Valid() {
				err = fmt.Errorf("rule %q: param %q has unknown kind %q", kind, lua.LVAsString(k), pk)
				return
			}
			rule.Shape.Params[lua.LVAsString(k)] = pk
		})
		if err != nil {
			return rule, err
		}
	}

	if legal, ok := tbl.RawGetString("legal").(*lua.LFunction); ok {
		rule.Legal = func(s *engine.State, a engine.Action) error { return rt.legal(legal, s, a) }
	}
	effect, ok := tbl.RawGetString("effect").(*lua.LFunction)
	if !ok {
		return rule, fmt.Errorf("rule %q must define effect()", kind)
	}
	rule.Effect = func(next *engine.State, a engine.Action) error { return rt.effect(effect, next, a) }
	return rule, nil
}

func (rt *runtime) conditions(key string, v lua.LValue) ([]engine.Condition, error) {
	if v == lua.LNil {
		return nil, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of functions", key)
	}
	var conds []engine.Condition
	for i := 1; i <= tbl.Len(); i++ {
		fn, ok := tbl.RawGetInt(i).(*lua.LFunction)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a function", key, i)
		}
		conds = append(conds, func(s *engine.State) (bool, engine.EntityID) { return rt.condition(fn, s) })
	}
	return conds, nil
}

// call invokes fn with args and returns nret results. Callers hold rt.mu.
func (rt *runtime) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	rt.L.SetContext(ctx)
	defer rt.L.RemoveContext()

	if err := rt.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, err
	}
	out := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		out[i] = rt.L.Get(-nret + i)
	}
	rt.L.Pop(nret)
	return out, nil
}

func (rt *runtime) setup(fn *lua.LFunction) (engine.Layout, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out, err := rt.call(fn, 1)
	if err != nil {
		return engine.Layout{}, fmt.Errorf("setup: %w", err)
	}
	tbl, ok := out[0].(*lua.LTable)
	if !ok {
		return engine.Layout{}, fmt.Errorf("setup must return a table")
	}
	entities, err := rt.entitiesFromList(tbl.RawGetString("entities"))
	if err != nil {
		return engine.Layout{}, fmt.Errorf("setup: %w", err)
	}
	return engine.Layout{
		Entities: entities,
		Order:    idList(tbl.RawGetString("order")),
		Meta:     stringMap(tbl.RawGetString("meta")),
	}, nil
}

func (rt *runtime) legal(fn *lua.LFunction, s *engine.State, a engine.Action) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out, err := rt.call(fn, 2, rt.stateTable(s), rt.actionTable(a))
	if err != nil {
		return fmt.Errorf("legal: %w", err)
	}
	if out[0] == lua.LNil || out[0] == lua.LTrue {
		return nil
	}
	constraint := engine.ConstraintIllegal
	if out[0].Type() == lua.LTString {
		constraint = lua.LVAsString(out[0])
	}
	return engine.Violation(constraint, "%s", lua.LVAsString(out[1]))
}

func (rt *runtime) effect(fn *lua.LFunction, next *engine.State, a engine.Action) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	tbl := rt.stateTable(next)
	out, err := rt.call(fn, 1, tbl, rt.actionTable(a))
	if err != nil {
		return fmt.Errorf("effect: %w", err)
	}
	if out[0] != lua.LNil {
		return engine.Violation(engine.ConstraintIllegal, "%s", lua.LVAsString(out[0]))
	}
	return rt.applyTable(tbl, next)
}

func (rt *runtime) condition(fn *lua.LFunction, s *engine.State) (bool, engine.EntityID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out, err := rt.call(fn, 2, rt.stateTable(s))
	if err != nil {
		// a failing condition never ends the game
		return false, ""
	}
	return lua.LVAsBool(out[0]), engine.EntityID(lua.LVAsString(out[1]))
}
