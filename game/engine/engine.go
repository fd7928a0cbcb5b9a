package engine

import "fmt"

// Engine applies actions to states under a ruleset. It holds no session state
// of its own: Apply is a pure function of its inputs.
type Engine struct {
	rules *Ruleset
}

// NewEngine creates an engine for the ruleset
func NewEngine(rules *Ruleset) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if rules.Turns == nil {
		rules.Turns = RoundRobin{}
	}
	return &Engine{rules: rules}, nil
}

// Ruleset returns the engine's ruleset
func (e *Engine) Ruleset() *Ruleset {
	return e.rules
}

// Name returns the ruleset name
func (e *Engine) Name() string {
	return e.rules.Name
}

// NewGame builds an in-progress state from layout and validates it against the
// ruleset schema
func (e *Engine) NewGame(game string, layout Layout) (*State, error) {
	s, err := FromLayout(game, layout)
	if err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if err := e.rules.Schema.Validate(s); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return s, nil
}

// DefaultLayout asks the ruleset for its initial layout
func (e *Engine) DefaultLayout() (Layout, error) {
	return e.rules.Setup()
}

// Actor returns the entity expected to act next, or "" when anyone may act
func (e *Engine) Actor(s *State) EntityID {
	if s.Status != StatusInProgress {
		return ""
	}
	return e.rules.Turns.Actor(s)
}

// Apply computes the state that results from applying a to s. On failure it
// returns a *RuleViolation and s is left exactly as it was.
func (e *Engine) Apply(s *State, a Action) (*State, error) {
	if s.Status != StatusInProgress {
		return nil, violate(a, ConstraintInactive, "status is %s", s.Status)
	}
	if !a.Kind.Valid() {
		return nil, violate(a, ConstraintUnknownKind, "unknown action kind %q", a.Kind)
	}
	if a.Kind == KindAbort {
		next := s.Clone()
		next.Status = StatusAborted
		next.Winner = ""
		return next, nil
	}

	rule, _ := e.rules.Rules.For(a.Kind)
	if !rule.Supported() {
		return nil, violate(a, ConstraintUnsupported, "%s does not support %s", e.rules.Name, a.Kind)
	}
	if !s.Has(a.Actor) {
		return nil, violate(a, ConstraintNoActor, "actor %q does not exist", a.Actor)
	}
	for _, t := range a.Targets {
		if !s.Has(t) {
			return nil, violate(a, ConstraintNoTarget, "target %q does not exist", t)
		}
	}
	if err := rule.Shape.Check(a); err != nil {
		return nil, violate(a, ConstraintShape, "%v", err)
	}
	if !e.rules.Turns.CanAct(s, a.Actor) {
		return nil, violate(a, ConstraintOutOfTurn, "it is %q's turn", e.rules.Turns.Actor(s))
	}

	next := s.Clone()
	if rule.Legal != nil {
		if err := rule.Legal(next, a); err != nil {
			return nil, asViolation(err, a, ConstraintIllegal)
		}
	}
	if err := rule.Effect(next, a); err != nil {
		return nil, asViolation(err, a, ConstraintIllegal)
	}
	if err := next.Validate(); err != nil {
		return nil, violate(a, ConstraintInvalidNext, "%v", err)
	}
	if err := e.rules.Schema.Validate(next); err != nil {
		return nil, violate(a, ConstraintInvalidNext, "%v", err)
	}

	e.rules.Turns.Advance(next)
	if next.Turn < s.Turn {
		next.Turn = s.Turn
	}
	next.Status, next.Winner = e.rules.End.Evaluate(next)
	if err := next.Validate(); err != nil {
		return nil, violate(a, ConstraintInvalidNext, "end condition: %v", err)
	}
	return next, nil
}

// Replay starts a game from layout and applies actions in order, stopping at
// the first rejection. It returns the last state reached.
func (e *Engine) Replay(game string, layout Layout, actions []Action) (*State, error) {
	s, err := e.NewGame(game, layout)
	if err != nil {
		return nil, err
	}
	for i, a := range actions {
		next, err := e.Apply(s, a)
		if err != nil {
			return s, fmt.Errorf("replay action %d: %w", i+1, err)
		}
		s = next
	}
	return s, nil
}
