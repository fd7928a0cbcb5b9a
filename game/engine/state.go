package engine

import (
	"fmt"
	"sort"
)

// SchemaVersion is the version stamped on every state this engine creates
const SchemaVersion = 1

// State is the canonical, serializable representation of a session.
// Only the engine mutates it, and only on a candidate copy.
type State struct {
	SchemaVersion int                  `json:"schemaVersion"`
	Game          string               `json:"game"`
	Turn          int                  `json:"turn"`
	Status        Status               `json:"status"`
	Winner        EntityID             `json:"winner,omitempty"`
	Order         []EntityID           `json:"order,omitempty"`
	Entities      map[EntityID]*Entity `json:"entities"`
	Meta          map[string]string    `json:"meta,omitempty"`
}

// NewState creates an empty, not yet started state for game
func NewState(game string) *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Game:          game,
		Status:        StatusNotStarted,
		Entities:      make(map[EntityID]*Entity),
		Meta:          make(map[string]string),
	}
}

// FromLayout builds an in-progress state at turn 0 from an initial layout
func FromLayout(game string, layout Layout) (*State, error) {
	s := NewState(game)
	for _, e := range layout.Entities {
		if e == nil {
			return nil, fmt.Errorf("layout contains a nil entity")
		}
		if e.ID == "" {
			return nil, fmt.Errorf("layout entity of type %q has no id", e.Type)
		}
		if _, dup := s.Entities[e.ID]; dup {
			return nil, fmt.Errorf("layout has duplicate entity id %q", e.ID)
		}
		s.Entities[e.ID] = e.Clone()
	}
	s.Order = append([]EntityID(nil), layout.Order...)
	for k, v := range layout.Meta {
		s.Meta[k] = v
	}
	s.Status = StatusInProgress
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Entity returns the entity with id, or nil
func (s *State) Entity(id EntityID) *Entity {
	return s.Entities[id]
}

// Has reports whether an entity with id exists
func (s *State) Has(id EntityID) bool {
	_, ok := s.Entities[id]
	return ok
}

// Len returns the number of entities
func (s *State) Len() int {
	return len(s.Entities)
}

// IDs returns all entity ids in sorted order
func (s *State) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EntitiesOfType returns entities of type t sorted by id
func (s *State) EntitiesOfType(t EntityType) []*Entity {
	var out []*Entity
	for _, id := range s.IDs() {
		if e := s.Entities[id]; e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Add inserts a new entity; the id must be unused
func (s *State) Add(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity has no id")
	}
	if s.Has(e.ID) {
		return fmt.Errorf("entity %q already exists", e.ID)
	}
	if e.Attrs == nil {
		e.Attrs = make(map[string]Value)
	}
	s.Entities[e.ID] = e
	return nil
}

// Remove deletes the entity with id and drops it from the turn order
func (s *State) Remove(id EntityID) {
	delete(s.Entities, id)
	order := s.Order[:0]
	for _, o := range s.Order {
		if o != id {
			order = append(order, o)
		}
	}
	s.Order = order
}

// Clone returns a deep copy sharing no mutable data with s
func (s *State) Clone() *State {
	c := &State{
		SchemaVersion: s.SchemaVersion,
		Game:          s.Game,
		Turn:          s.Turn,
		Status:        s.Status,
		Winner:        s.Winner,
		Entities:      make(map[EntityID]*Entity, len(s.Entities)),
		Meta:          make(map[string]string, len(s.Meta)),
	}
	if s.Order != nil {
		c.Order = append([]EntityID(nil), s.Order...)
	}
	for id, e := range s.Entities {
		c.Entities[id] = e.Clone()
	}
	for k, v := range s.Meta {
		c.Meta[k] = v
	}
	return c
}

// Equal reports structural equality. Nil and empty collections compare equal.
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.SchemaVersion != o.SchemaVersion || s.Game != o.Game || s.Turn != o.Turn ||
		s.Status != o.Status || s.Winner != o.Winner {
		return false
	}
	if len(s.Order) != len(o.Order) {
		return false
	}
	for i := range s.Order {
		if s.Order[i] != o.Order[i] {
			return false
		}
	}
	if len(s.Meta) != len(o.Meta) {
		return false
	}
	for k, v := range s.Meta {
		if ov, ok := o.Meta[k]; !ok || ov != v {
			return false
		}
	}
	if len(s.Entities) != len(o.Entities) {
		return false
	}
	for id, e := range s.Entities {
		oe, ok := o.Entities[id]
		if !ok || e.ID != oe.ID || e.Type != oe.Type || len(e.Attrs) != len(oe.Attrs) {
			return false
		}
		for k, v := range e.Attrs {
			if ov, ok := oe.Attrs[k]; !ok || ov != v {
				return false
			}
		}
	}
	return true
}

// Validate checks the structural invariants every state must hold:
// keys agree with entity ids, the turn counter is non-negative, the status is
// known, and every order entry and ref attribute resolves to an entity.
func (s *State) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.Turn < 0 {
		return fmt.Errorf("turn must be non-negative, got %d", s.Turn)
	}
	if s.Winner != "" && !s.Has(s.Winner) {
		return fmt.Errorf("winner %q does not exist", s.Winner)
	}
	seen := make(map[EntityID]bool, len(s.Order))
	for _, id := range s.Order {
		if !s.Has(id) {
			return fmt.Errorf("turn order references missing entity %q", id)
		}
		if seen[id] {
			return fmt.Errorf("turn order lists %q twice", id)
		}
		seen[id] = true
	}
	for _, id := range s.IDs() {
		e := s.Entities[id]
		if e == nil {
			return fmt.Errorf("entity %q is nil", id)
		}
		if e.ID != id {
			return fmt.Errorf("entity stored under %q has id %q", id, e.ID)
		}
		if e.Type == "" {
			return fmt.Errorf("entity %q has no type", id)
		}
		for key, v := range e.Attrs {
			if v.IsZero() {
				return fmt.Errorf("entity %q attribute %q has no value", id, key)
			}
			if v.Kind() == KindRef && !s.Has(v.Ref()) {
				return fmt.Errorf("entity %q attribute %q references missing entity %q", id, key, v.Ref())
			}
		}
	}
	return nil
}

// Schema declares the closed set of entity types and, per type, the allowed
// attribute keys and their kinds.
type Schema map[EntityType]map[string]ValueKind

// Validate checks every entity in s against the schema
func (sc Schema) Validate(s *State) error {
	for _, id := range s.IDs() {
		if err := sc.ValidateEntity(s.Entities[id]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEntity checks a single entity's type and attributes
func (sc Schema) ValidateEntity(e *Entity) error {
	fields, ok := sc[e.Type]
	if !ok {
		return fmt.Errorf("entity %q has unknown type %q", e.ID, e.Type)
	}
	for key, v := range e.Attrs {
		kind, ok := fields[key]
		if !ok {
			return fmt.Errorf("entity %q of type %q has unknown attribute %q", e.ID, e.Type, key)
		}
		if v.Kind() != kind {
			return fmt.Errorf("entity %q attribute %q must be %s, got %s", e.ID, key, kind, v.Kind())
		}
	}
	return nil
}
