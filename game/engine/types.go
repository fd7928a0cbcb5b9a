package engine

// EntityID identifies an entity within a single state
type EntityID string

// EntityType tags an entity with one of the variants a ruleset's schema declares
type EntityType string

// Status is the lifecycle tag of a session
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
	StatusDrawn      Status = "drawn"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether the status ends the session
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusDrawn, StatusAborted:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusWon, StatusLost, StatusDrawn, StatusAborted:
		return true
	}
	return false
}

// ActionKind is the closed set of action variants the engine dispatches on
type ActionKind string

const (
	KindMove   ActionKind = "move"
	KindPlace  ActionKind = "place"
	KindRemove ActionKind = "remove"
	KindUpdate ActionKind = "update"
	KindPass   ActionKind = "pass"
	KindAbort  ActionKind = "abort"
)

// Kinds lists every action kind in dispatch order
var Kinds = []ActionKind{KindMove, KindPlace, KindRemove, KindUpdate, KindPass, KindAbort}

// Valid reports whether k is a known action kind
func (k ActionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entity is a uniquely identified participant in a session
type Entity struct {
	ID    EntityID         `json:"id"`
	Type  EntityType       `json:"type"`
	Attrs map[string]Value `json:"attrs"`
}

// Attr returns the attribute value for key and whether it is set
func (e *Entity) Attr(key string) (Value, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

// Int returns the integer attribute for key, or 0 when absent or of another kind
func (e *Entity) Int(key string) int64 {
	return e.Attrs[key].Int()
}

// Set stores an attribute value, allocating the bag if needed
func (e *Entity) Set(key string, v Value) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]Value)
	}
	e.Attrs[key] = v
}

// Clone returns a deep copy of the entity
func (e *Entity) Clone() *Entity {
	c := &Entity{ID: e.ID, Type: e.Type, Attrs: make(map[string]Value, len(e.Attrs))}
	for k, v := range e.Attrs {
		c.Attrs[k] = v
	}
	return c
}

// Action is a request to mutate state, consumed exactly once by the engine
type Action struct {
	ID      string           `json:"id,omitempty"`
	Actor   EntityID         `json:"actor"`
	Kind    ActionKind       `json:"kind"`
	Targets []EntityID       `json:"targets,omitempty"`
	Params  map[string]Value `json:"params,omitempty"`
}

// Param returns the payload value for key and whether it is present
func (a Action) Param(key string) (Value, bool) {
	v, ok := a.Params[key]
	return v, ok
}

// Clone returns a copy that shares no slices or maps with a
func (a Action) Clone() Action {
	c := a
	if a.Targets != nil {
		c.Targets = append([]EntityID(nil), a.Targets...)
	}
	if a.Params != nil {
		c.Params = make(map[string]Value, len(a.Params))
		for k, v := range a.Params {
			c.Params[k] = v
		}
	}
	return c
}

// Layout is the initial configuration a session starts from
type Layout struct {
	Entities []*Entity         `json:"entities"`
	Order    []EntityID        `json:"order,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Snapshot is a read-only copy of a committed state handed to renderers.
// Mutating it never affects the live session.
type Snapshot struct {
	State       *State   `json:"state"`
	Actor       EntityID `json:"actor,omitempty"`
	Pending     int      `json:"pending"`
	Fingerprint uint64   `json:"fingerprint"`
}
