package script

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/wricardo/gamecore/game/engine"
)

func toLua(v engine.Value) lua.LValue {
	switch v.Kind() {
	case engine.KindInt:
		return lua.LNumber(v.Int())
	case engine.KindString:
		return lua.LString(v.Str())
	case engine.KindBool:
		return lua.LBool(v.Bool())
	case engine.KindRef:
		return lua.LString(v.Ref())
	}
	return lua.LNil
}

func fromLua(kind engine.ValueKind, v lua.LValue) (engine.Value, error) {
	switch kind {
	case engine.KindInt:
		n, ok := v.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) {
			return engine.Value{}, fmt.Errorf("expected integer, got %s", v.Type())
		}
		return engine.IntValue(int64(n)), nil
	case engine.KindString:
		s, ok := v.(lua.LString)
		if !ok {
			return engine.Value{}, fmt.Errorf("expected string, got %s", v.Type())
		}
		return engine.StringValue(string(s)), nil
	case engine.KindBool:
		b, ok := v.(lua.LBool)
		if !ok {
			return engine.Value{}, fmt.Errorf("expected boolean, got %s", v.Type())
		}
		return engine.BoolValue(bool(b)), nil
	case engine.KindRef:
		s, ok := v.(lua.LString)
		if !ok || s == "" {
			return engine.Value{}, fmt.Errorf("expected entity id, got %s", v.Type())
		}
		return engine.RefValue(engine.EntityID(s)), nil
	}
	return engine.Value{}, fmt.Errorf("unknown kind %q", kind)
}

// sortedKeys fixes the order pairs() walks a converted table in
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (rt *runtime) entityTable(e *engine.Entity) *lua.LTable {
	tbl := rt.L.NewTable()
	tbl.RawSetString("id", lua.LString(e.ID))
	tbl.RawSetString("type", lua.LString(e.Type))
	attrs := rt.L.NewTable()
	for _, k := range sortedKeys(e.Attrs) {
		attrs.RawSetString(k, toLua(e.Attrs[k]))
	}
	tbl.RawSetString("attrs", attrs)
	return tbl
}

// stateTable exposes s to a script. Entities are keyed by id.
func (rt *runtime) stateTable(s *engine.State) *lua.LTable {
	tbl := rt.L.NewTable()
	tbl.RawSetString("game", lua.LString(s.Game))
	tbl.RawSetString("turn", lua.LNumber(s.Turn))
	tbl.RawSetString("status", lua.LString(s.Status))

	order := rt.L.NewTable()
	for _, id := range s.Order {
		order.Append(lua.LString(id))
	}
	tbl.RawSetString("order", order)

	meta := rt.L.NewTable()
	for _, k := range sortedKeys(s.Meta) {
		meta.RawSetString(k, lua.LString(s.Meta[k]))
	}
	tbl.RawSetString("meta", meta)

	entities := rt.L.NewTable()
	for _, id := range s.IDs() {
		entities.RawSetString(string(id), rt.entityTable(s.Entities[id]))
	}
	tbl.RawSetString("entities", entities)
	return tbl
}

func (rt *runtime) actionTable(a engine.Action) *lua.LTable {
	tbl := rt.L.NewTable()
	tbl.RawSetString("id", lua.LString(a.ID))
	tbl.RawSetString("actor", lua.LString(a.Actor))
	tbl.RawSetString("kind", lua.LString(a.Kind))
	targets := rt.L.NewTable()
	for _, t := range a.Targets {
		targets.Append(lua.LString(t))
	}
	tbl.RawSetString("targets", targets)
	params := rt.L.NewTable()
	for _, k := range sortedKeys(a.Params) {
		params.RawSetString(k, toLua(a.Params[k]))
	}
	tbl.RawSetString("params", params)
	return tbl
}

// entity converts a script entity table, checking attributes against the schema
func (rt *runtime) entity(id engine.EntityID, v lua.LValue) (*engine.Entity, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("entity %q must be a table", id)
	}
	if tid := lua.LVAsString(tbl.RawGetString("id")); tid != "" && engine.EntityID(tid) != id {
		return nil, fmt.Errorf("entity %q has mismatched id %q", id, tid)
	}
	typ := engine.EntityType(lua.LVAsString(tbl.RawGetString("type")))
	fields, ok := rt.schema[typ]
	if !ok {
		return nil, fmt.Errorf("entity %q has unknown type %q", id, typ)
	}

	e := &engine.Entity{ID: id, Type: typ, Attrs: map[string]engine.Value{}}
	if attrs, ok := tbl.RawGetString("attrs").(*lua.LTable); ok {
		var err error
		attrs.ForEach(func(k, v lua.LValue) {
			if err != nil {
				return
			}
			key := lua.LVAsString(k)
			kind, ok := fields[key]
			if !ok {
				err = fmt.Errorf("entity %q has unknown attribute %q", id, key)
				return
			}
			val, verr := fromLua(kind, v)
			if verr != nil {
				err = fmt.Errorf("entity %q attribute %q: %w", id, key, verr)
				return
			}
			e.Attrs[key] = val
		})
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (rt *runtime) entitiesFromList(v lua.LValue) ([]*engine.Entity, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("entities must be a list")
	}
	out := make([]*engine.Entity, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		item, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("entities[%d] must be a table", i)
		}
		id := engine.EntityID(lua.LVAsString(item.RawGetString("id")))
		if id == "" {
			return nil, fmt.Errorf("entities[%d] has no id", i)
		}
		e, err := rt.entity(id, item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// applyTable copies a script-mutated state table back onto next. Turn and
// status stay under engine control.
func (rt *runtime) applyTable(tbl *lua.LTable, next *engine.State) error {
	entities, ok := tbl.RawGetString("entities").(*lua.LTable)
	if !ok {
		return fmt.Errorf("effect removed the entities table")
	}
	converted := make(map[engine.EntityID]*engine.Entity)
	var err error
	entities.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		id := engine.EntityID(lua.LVAsString(k))
		if id == "" {
			err = fmt.Errorf("entity keys must be non-empty strings")
			return
		}
		e, cerr := rt.entity(id, v)
		if cerr != nil {
			err = cerr
			return
		}
		converted[id] = e
	})
	if err != nil {
		return err
	}

	next.Entities = converted
	next.Order = idList(tbl.RawGetString("order"))
	next.Meta = stringMap(tbl.RawGetString("meta"))
	if next.Meta == nil {
		next.Meta = map[string]string{}
	}
	return nil
}

func idList(v lua.LValue) []engine.EntityID {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []engine.EntityID
	for i := 1; i <= tbl.Len(); i++ {
		out = append(out, engine.EntityID(lua.LVAsString(tbl.RawGetInt(i))))
	}
	return out
}

func stringMap(v lua.LValue) map[string]string {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	out := map[string]string{}
	tbl.ForEach(func(k, v lua.LValue) {
		out[lua.LVAsString(k)] = lua.LVAsString(v)
	})
	return out
}
