// Package engine provides the rule-agnostic core of a turn-based game session.
//
// The engine package implements:
//   - The State Store: entities with typed attribute bags, a monotonic turn
//     counter and a lifecycle status
//   - Rulesets: swappable schema, turn, legality, effect and end-condition
//     policies
//   - The Rule Engine: atomic, deterministic state transitions
//
// Core Types:
//
// State is the canonical, serializable session state. Action is a request to
// mutate it. Ruleset bundles the policies of one game, and Engine applies
// actions under a ruleset. Rejected actions yield a *RuleViolation, which
// matches ErrRuleViolation under errors.Is.
//
// Usage:
//
//	eng, err := engine.NewEngine(ruleset)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	layout, _ := eng.DefaultLayout()
//	state, err := eng.NewGame("classic", layout)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	next, err := eng.Apply(state, engine.Action{Actor: "car_1", Kind: engine.KindPass})
//	if errors.Is(err, engine.ErrRuleViolation) {
//		// state is unchanged
//	}
//
// Transitions:
//
// Apply never mutates its input. It checks the session is in progress, that
// the action is well formed and in turn, runs the ruleset's legality
// predicate, applies the effect to a clone, validates the candidate against
// the schema and structural invariants, advances the turn and evaluates end
// conditions (win, then loss, then draw). Abort is handled by the engine for
// every ruleset.
package engine
