package engine

import "fmt"

// AnyTargets disables the target count check in a Shape
const AnyTargets = -1

// Shape describes the payload an action kind expects
type Shape struct {
	// Targets is the exact number of target entities, or AnyTargets
	Targets int
	// Params lists required payload keys and their kinds
	Params map[string]ValueKind
}

// Check validates the structure of a against the shape
func (sh Shape) Check(a Action) error {
	if sh.Targets != AnyTargets && len(a.Targets) != sh.Targets {
		return fmt.Errorf("expected %d targets, got %d", sh.Targets, len(a.Targets))
	}
	for key, kind := range sh.Params {
		v, ok := a.Params[key]
		if !ok {
			return fmt.Errorf("missing param %q", key)
		}
		if v.Kind() != kind {
			return fmt.Errorf("param %q must be %s, got %s", key, kind, v.Kind())
		}
	}
	return nil
}

// Predicate decides whether an action is legal in a state. It returns nil when
// legal. It must not mutate the state.
type Predicate func(s *State, a Action) error

// Effect applies an action's consequences to a candidate state
type Effect func(next *State, a Action) error

// Rule is the handler for one action kind. A Rule without an Effect marks the
// kind as unsupported.
type Rule struct {
	Shape  Shape
	Legal  Predicate
	Effect Effect
}

// Supported reports whether the rule can be applied
func (r Rule) Supported() bool {
	return r.Effect != nil
}

// Rules holds one handler per ruleset-defined action kind. Abort is handled by
// the engine itself.
type Rules struct {
	Move   Rule
	Place  Rule
	Remove Rule
	Update Rule
	Pass   Rule
}

// For dispatches on the closed set of action kinds
func (r Rules) For(kind ActionKind) (Rule, bool) {
	switch kind {
	case KindMove:
		return r.Move, true
	case KindPlace:
		return r.Place, true
	case KindRemove:
		return r.Remove, true
	case KindUpdate:
		return r.Update, true
	case KindPass:
		return r.Pass, true
	}
	return Rule{}, false
}

// Condition is an end-condition check. It reports whether it matched and,
// optionally, the entity that won.
type Condition func(s *State) (matched bool, winner EntityID)

// EndConditions are evaluated after every successful transition: win
// conditions first, then loss, then draw. The first match decides.
type EndConditions struct {
	Win  []Condition
	Loss []Condition
	Draw []Condition
}

// Evaluate returns the status the state should move to, or StatusInProgress
func (ec EndConditions) Evaluate(s *State) (Status, EntityID) {
	groups := []struct {
		status Status
		conds  []Condition
	}{
		{StatusWon, ec.Win},
		{StatusLost, ec.Loss},
		{StatusDrawn, ec.Draw},
	}
	for _, g := range groups {
		for _, cond := range g.conds {
			if matched, who := cond(s); matched {
				if g.status != StatusWon {
					who = ""
				}
				return g.status, who
			}
		}
	}
	return StatusInProgress, ""
}

// TurnPolicy decides who may act and how the turn counter moves
type TurnPolicy interface {
	// Actor returns the entity expected to act next, or "" when anyone may
	Actor(s *State) EntityID
	// CanAct reports whether actor may act in s
	CanAct(s *State, actor EntityID) bool
	// Advance moves the candidate state's turn forward after a transition
	Advance(next *State)
}

// RoundRobin rotates through State.Order, one action per turn
type RoundRobin struct{}

func (RoundRobin) Actor(s *State) EntityID {
	if len(s.Order) == 0 {
		return ""
	}
	return s.Order[s.Turn%len(s.Order)]
}

func (p RoundRobin) CanAct(s *State, actor EntityID) bool {
	expected := p.Actor(s)
	return expected == "" || expected == actor
}

func (RoundRobin) Advance(next *State) { next.Turn++ }

// FreeForAll lets any listed actor (or any entity when Order is empty) act at
// any time; every action still counts as a turn.
type FreeForAll struct{}

func (FreeForAll) Actor(*State) EntityID { return "" }

func (FreeForAll) CanAct(s *State, actor EntityID) bool {
	if len(s.Order) == 0 {
		return true
	}
	for _, id := range s.Order {
		if id == actor {
			return true
		}
	}
	return false
}

func (FreeForAll) Advance(next *State) { next.Turn++ }

// Ruleset bundles the swappable policies that define a game
type Ruleset struct {
	Name   string
	Schema Schema
	Turns  TurnPolicy
	Rules  Rules
	End    EndConditions
	// Setup produces the initial layout for a new session
	Setup func() (Layout, error)
}

// Validate reports configuration mistakes in the ruleset itself
func (rs *Ruleset) Validate() error {
	if rs == nil {
		return fmt.Errorf("ruleset is nil")
	}
	if rs.Name == "" {
		return fmt.Errorf("ruleset name is required")
	}
	if len(rs.Schema) == 0 {
		return fmt.Errorf("ruleset %q declares no entity types", rs.Name)
	}
	for t, fields := range rs.Schema {
		for key, kind := range fields {
			if !kind.Valid() {
				return fmt.Errorf("ruleset %q: %s.%s has unknown kind %q", rs.Name, t, key, kind)
			}
		}
	}
	if rs.Setup == nil {
		return fmt.Errorf("ruleset %q has no setup", rs.Name)
	}
	supported := 0
	for _, kind := range Kinds {
		if r, ok := rs.Rules.For(kind); ok && r.Supported() {
			supported++
		}
	}
	if supported == 0 {
		return fmt.Errorf("ruleset %q supports no action kinds", rs.Name)
	}
	return nil
}
